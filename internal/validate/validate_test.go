package validate

import (
	"strings"
	"testing"

	"github.com/szaher/config-manager/internal/document"
)

func parse(t *testing.T, src string) *document.Document {
	t.Helper()
	doc, err := document.Parse("doc.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestValidateStructural_Valid(t *testing.T) {
	doc := parse(t, `
when: host.os == "linux"
install:
  install:
    - package: nginx
configure:
  files:
    - path: /etc/motd
      content: hi
      mode: "0644"
  services:
    - name: nginx
      state: restarted
`)
	if errs := ValidateStructural(doc); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateStructural_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing remove name",
			src:   "remove:\n  packages:\n    - name: \"\"\n",
			field: "remove.packages[0].name",
		},
		{
			name:  "missing install package",
			src:   "install:\n  install:\n    - package: \"\"\n",
			field: "install.install[0].package",
		},
		{
			name:  "blank install package",
			src:   "install:\n  install:\n    - package: \"   \"\n",
			field: "install.install[0].package",
		},
		{
			name:  "blank remove name",
			src:   "remove:\n  packages:\n    - name: \"\\t\"\n",
			field: "remove.packages[0].name",
		},
		{
			name:  "blank service name",
			src:   "configure:\n  services:\n    - name: \" \"\n      state: started\n",
			field: "configure.services[0].name",
		},
		{
			name:  "blank hook command",
			src:   "install:\n  pre_install:\n    - command: \"  \"\n",
			field: "install.pre_install[0].command",
		},
		{
			name:  "blank file path",
			src:   "configure:\n  files:\n    - path: \"  \"\n      content: x\n",
			field: "configure.files[0].path",
		},
		{
			name:  "missing hook command",
			src:   "install:\n  post_install:\n    - command: \"\"\n",
			field: "install.post_install[0].command",
		},
		{
			name:  "relative file path",
			src:   "configure:\n  files:\n    - path: etc/motd\n      content: x\n",
			field: "configure.files[0].path",
		},
		{
			name:  "bad mode",
			src:   "configure:\n  files:\n    - path: /etc/motd\n      mode: \"rwx\"\n",
			field: "configure.files[0].mode",
		},
		{
			name:  "unknown service state",
			src:   "configure:\n  services:\n    - name: nginx\n      state: reloaded\n",
			field: "configure.services[0].state",
		},
		{
			name:  "bad document guard",
			src:   "when: host.os ==\ninstall:\n  install:\n    - package: curl\n",
			field: "when",
		},
		{
			name:  "bad service guard",
			src:   "configure:\n  services:\n    - name: nginx\n      state: started\n      when: nope\n",
			field: "configure.services[0].when",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := ValidateStructural(parse(t, tc.src))
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Field != tc.field {
				t.Errorf("field: got %q, want %q", errs[0].Field, tc.field)
			}
			if !strings.HasPrefix(errs[0].Error(), "doc.yaml: "+tc.field) {
				t.Errorf("unexpected message %q", errs[0].Error())
			}
		})
	}
}
