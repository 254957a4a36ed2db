// Package winconfig reads the three scalar options the password filter is
// configured with from the Windows registry. This is an external
// collaborator per spec §1/§6; the core never depends on it.
package winconfig

// registryPath is the key the original implementation reads from.
const registryPath = `SYSTEM\CurrentControlSet\Control\Lsa\HIBPPwdFlt`

// DefaultDBPath is used when the registry has no DBPath value.
const DefaultDBPath = `C:\Windows\System32\HIBPPwdFlt\hibp.chdb`

// Settings holds the three scalar options the registry-backed reader
// provides: a database path, an on-error policy flag, and a
// check-on-password-set flag.
type Settings struct {
	// DBPath is the path to the CHDB file used for lookups.
	DBPath string

	// RejectOnError, when true, rejects a password if the CHDB cannot be
	// read rather than accepting it.
	RejectOnError bool

	// CheckOnSet, when true, also checks passwords during a password-set
	// operation rather than only during a password change.
	CheckOnSet bool
}

// Default returns the settings used when the registry key is absent or
// unreadable.
func Default() Settings {
	return Settings{
		DBPath:        DefaultDBPath,
		RejectOnError: false,
		CheckOnSet:    false,
	}
}
