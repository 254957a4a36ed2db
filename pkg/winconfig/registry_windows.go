//go:build windows

package winconfig

import "golang.org/x/sys/windows/registry"

// Load reads Settings from HKLM\SYSTEM\CurrentControlSet\Control\Lsa\HIBPPwdFlt,
// falling back to Default() for any value that is missing or the wrong type,
// mirroring RegConfig::get_or in the original implementation.
func Load() Settings {
	s := Default()

	k, err := registry.OpenKey(registry.LOCAL_MACHINE, registryPath, registry.QUERY_VALUE)
	if err != nil {
		return s
	}

	defer k.Close()

	if v, _, err := k.GetStringValue("DBPath"); err == nil && v != "" {
		s.DBPath = v
	}

	if v, _, err := k.GetIntegerValue("RejectOnError"); err == nil {
		s.RejectOnError = v != 0
	}

	if v, _, err := k.GetIntegerValue("CheckOnSet"); err == nil {
		s.CheckOnSet = v != 0
	}

	return s
}
