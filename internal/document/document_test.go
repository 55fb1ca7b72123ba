package document

import (
	"errors"
	"testing"
)

const webDoc = `
install:
  pre_install:
    - command: apt-get update
  install:
    - package: nginx
  post_install:
    - command: nginx -t
remove:
  packages:
    - name: apache2
configure:
  files:
    - path: /etc/nginx/conf.d/site.conf
      content: |
        server {}
      mode: 0644
      owner: root
      group: www-data
  services:
    - name: nginx
      state: started
      enabled: true
`

func TestParse_FullDocument(t *testing.T) {
	doc, err := Parse("web.yaml", []byte(webDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Path != "web.yaml" {
		t.Errorf("path: got %q", doc.Path)
	}
	if len(doc.Remove.Packages) != 1 || doc.Remove.Packages[0].Name != "apache2" {
		t.Errorf("remove: got %+v", doc.Remove)
	}
	if len(doc.Install.Install) != 1 || doc.Install.Install[0].Package != "nginx" {
		t.Errorf("install: got %+v", doc.Install.Install)
	}
	f := doc.Configure.Files[0]
	if f.Mode != "0644" {
		t.Errorf("mode: got %q, want raw %q", f.Mode, "0644")
	}
	if f.Content != "server {}\n" {
		t.Errorf("content: got %q", f.Content)
	}
	svc := doc.Configure.Services[0]
	if svc.State != RunStateStarted || svc.Enabled == nil || !*svc.Enabled {
		t.Errorf("service: got %+v", svc)
	}
}

func TestParse_MissingSectionsAreEmpty(t *testing.T) {
	doc, err := Parse("a.yaml", []byte("install:\n  install:\n    - package: curl\nunknown_section: 1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Remove.Packages) != 0 || len(doc.Configure.Files) != 0 {
		t.Errorf("expected empty sections, got %+v", doc)
	}
	if got := doc.Directives(); len(got) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(got))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantEmpty bool
	}{
		{name: "empty", input: "", wantEmpty: true},
		{name: "whitespace", input: "  \n\n", wantEmpty: true},
		{name: "null", input: "~\n", wantEmpty: true},
		{name: "empty mapping", input: "{}\n", wantEmpty: true},
		{name: "scalar root", input: "hello\n"},
		{name: "list root", input: "- a\n- b\n"},
		{name: "bad yaml", input: "install: [\n"},
		{name: "section wrong type", input: "remove: 3\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("b.yaml", []byte(tc.input))
			if err == nil {
				t.Fatal("expected error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if perr.Path != "b.yaml" {
				t.Errorf("path: got %q", perr.Path)
			}
			if tc.wantEmpty && !errors.Is(err, ErrEmptyDocument) {
				t.Errorf("expected ErrEmptyDocument, got %v", err)
			}
		})
	}
}

func TestDirectives_PhaseOrder(t *testing.T) {
	doc, err := Parse("web.yaml", []byte(webDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := doc.Directives()
	want := []Kind{
		KindRemovePackage,
		KindPreInstallHook,
		KindInstallPackage,
		KindPostInstallHook,
		KindFile,
		KindService,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d directives, got %d", len(want), len(got))
	}
	for i, d := range got {
		if d.Kind() != want[i] {
			t.Errorf("directive %d: got %s, want %s", i, d.Kind(), want[i])
		}
		if i > 0 && d.Phase() < got[i-1].Phase() {
			t.Errorf("directive %d out of phase order", i)
		}
	}
}

func TestFileMode(t *testing.T) {
	tests := []struct {
		mode    FileMode
		want    uint32
		str     string
		wantErr bool
	}{
		{mode: "644", want: 0o644, str: "644"},
		{mode: "0644", want: 0o644, str: "0644"},
		{mode: "0o600", want: 0o600, str: "600"},
		{mode: "4755", want: 0o4755, str: "4755"},
		{mode: "rw-r--r--", wantErr: true},
		{mode: "99", wantErr: true},
		{mode: "17777", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			got, err := tc.mode.Perm()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Perm: %v", err)
			}
			if got != tc.want {
				t.Errorf("Perm: got %o, want %o", got, tc.want)
			}
			if tc.mode.String() != tc.str {
				t.Errorf("String: got %q, want %q", tc.mode.String(), tc.str)
			}
		})
	}
}

func TestOpaqueCommand_Argv(t *testing.T) {
	got := OpaqueCommand("  apt-get   update -q ").Argv()
	want := []string{"apt-get", "update", "-q"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestServiceState_Describe(t *testing.T) {
	enabled := true
	tests := []struct {
		svc  ServiceState
		want string
	}{
		{svc: ServiceState{Name: "nginx"}, want: "service nginx"},
		{svc: ServiceState{Name: "nginx", State: RunStateStarted}, want: "service nginx (state=started)"},
		{svc: ServiceState{Name: "nginx", State: RunStateStopped, Enabled: &enabled}, want: "service nginx (state=stopped, enabled=true)"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.svc.Describe(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
