package patch

import (
	"path/filepath"
	"strings"
)

// OpenSSLPatchName identifies the openssl-sys i686 patch in outcomes.
const OpenSSLPatchName = "openssl-sys-i686"

// OpenSSLBuckPath is the generated buildscript rule file the patch targets,
// relative to the workspace.
var OpenSSLBuckPath = filepath.Join("third-party", "rust", "crates", "openssl-sys", "0.9.111", "BUCK")

// openSSLMarker is the buildscript_run attribute the platform block follows.
const openSSLMarker = "    manifest_dir = \":openssl-sys-vendor\",\n"

const openSSLPlatformBlock = `    platform = {
        "i686-unknown-linux-gnu": {
            "env": {
                "OPENSSL_LIB_DIR": "/usr/lib/i386-linux-gnu",
                "OPENSSL_INCLUDE_DIR": "/usr/include",
                "PKG_CONFIG_ALLOW_CROSS": "1",
                "PKG_CONFIG_PATH": "/usr/lib/i386-linux-gnu/pkgconfig:/usr/lib/pkgconfig",
            },
        },
    },
`

// PatchOpenSSLI686 injects the i686 OpenSSL environment into the openssl-sys
// buildscript rule of workspace. It skips when the file or marker is
// missing, and when the block is already there.
func PatchOpenSSLI686(workspace string) (Outcome, error) {
	path := filepath.Join(workspace, OpenSSLBuckPath)
	data, mode, ok, err := readOptional(path)
	if err != nil {
		return failed(OpenSSLPatchName, path, err.Error()), err
	}
	if !ok {
		return skippedWarn(OpenSSLPatchName, path, "openssl-sys BUCK not found"), nil
	}

	contents := string(data)
	if strings.Contains(contents, "i686-unknown-linux-gnu") && strings.Contains(contents, "OPENSSL_LIB_DIR") {
		return skipped(OpenSSLPatchName, path, "i686 env patch already present"), nil
	}
	if !strings.Contains(contents, openSSLMarker) {
		return skippedWarn(OpenSSLPatchName, path, "buildscript_run marker not found"), nil
	}

	patched := strings.Replace(contents, openSSLMarker, openSSLMarker+openSSLPlatformBlock, 1)
	if err := writeFile(path, patched, mode); err != nil {
		return failed(OpenSSLPatchName, path, err.Error()), err
	}
	return applied(OpenSSLPatchName, path, "patched buildscript env for i686"), nil
}
