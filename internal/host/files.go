package host

// MkdirArgv creates dir and any missing parents.
func MkdirArgv(dir string) []string { return []string{"mkdir", "-p", dir} }

// MoveArgv renames src over dst.
func MoveArgv(src, dst string) []string { return []string{"mv", src, dst} }

// ChmodArgv sets the permission bits of path.
func ChmodArgv(path, mode string) []string { return []string{"chmod", mode, path} }

// ChownArgv sets ownership of path. It returns nil when neither owner
// nor group is given.
func ChownArgv(path, owner, group string) []string {
	var spec string
	switch {
	case owner != "" && group != "":
		spec = owner + ":" + group
	case owner != "":
		spec = owner
	case group != "":
		spec = ":" + group
	default:
		return nil
	}
	return []string{"chown", spec, path}
}
