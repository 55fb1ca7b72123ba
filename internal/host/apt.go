package host

import "bytes"

func init() {
	RegisterPackageManager("apt", func() PackageManager { return Apt{} })
}

// Apt drives dpkg-query and apt-get.
type Apt struct{}

func (Apt) Name() string { return "apt" }

func (Apt) QueryArgv(pkg string) []string {
	return []string{"dpkg-query", "-W", "-f=${Status}", pkg}
}

func (Apt) Installed(stdout []byte) bool {
	return bytes.Contains(stdout, []byte("install ok installed"))
}

func (Apt) InstallArgv(pkg string) []string {
	return []string{"/usr/bin/apt-get", "install", "-y", pkg}
}

func (Apt) RemoveArgv(pkg string) []string {
	return []string{"/usr/bin/apt-get", "remove", "-y", pkg}
}
