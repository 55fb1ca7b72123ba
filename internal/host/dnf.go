package host

func init() {
	RegisterPackageManager("dnf", func() PackageManager { return Dnf{} })
}

// Dnf drives rpm and dnf. rpm -q exits non-zero for missing packages,
// so any successful query means installed.
type Dnf struct{}

func (Dnf) Name() string { return "dnf" }

func (Dnf) QueryArgv(pkg string) []string { return []string{"rpm", "-q", pkg} }

func (Dnf) Installed([]byte) bool { return true }

func (Dnf) InstallArgv(pkg string) []string { return []string{"dnf", "install", "-y", pkg} }

func (Dnf) RemoveArgv(pkg string) []string { return []string{"dnf", "remove", "-y", pkg} }
