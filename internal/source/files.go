package source

import (
	"fmt"
	"path"
	"strings"

	"github.com/buildorch/buildorch/internal/config"
)

// fileCommands renders the in-sandbox command sequence for one
// declared distfile: download, checksum, optional detached-signature
// verification, optional uncompress. Grounded on the original
// implementation's download-and-verify-file script, reshaped into
// plain shell invocations the way every other distro plugin in this
// tree already builds its commands.
func fileCommands(f config.FileEntry) []string {
	name := f.Name
	if name == "" {
		name = path.Base(f.URL)
	}
	dest := "@DISTFILES_DIR@/" + name

	cmds := []string{
		fmt.Sprintf("curl -fsSL -o %s %s", dest, shellQuote(f.URL)),
	}

	switch {
	case f.SHA512 != "":
		cmds = append(cmds, fmt.Sprintf("echo %s > %s.sha512 && sha512sum -c %s.sha512", shellQuote(f.SHA512+"  "+dest), dest, dest))
	case f.SHA256 != "":
		cmds = append(cmds, fmt.Sprintf("echo %s > %s.sha256 && sha256sum -c %s.sha256", shellQuote(f.SHA256+"  "+dest), dest, dest))
	}

	if f.Signature != "" {
		sigDest := dest + ".sig"
		cmds = append(cmds, fmt.Sprintf("curl -fsSL -o %s %s", sigDest, shellQuote(f.Signature)))
		for _, pubkey := range f.Pubkeys {
			cmds = append(cmds, fmt.Sprintf("gpg --batch --import %s", shellQuote(pubkey)))
		}
		cmds = append(cmds, fmt.Sprintf("gpg --batch --verify %s %s", sigDest, dest))
	}

	if f.Uncompress {
		cmds = append(cmds, uncompressCommand(dest, name))
	}

	return cmds
}

// uncompressCommand picks the decompressor by dest's extension,
// mirroring the original implementation's uncompress dispatch (it
// recognizes .gz/.bz2/.xz and otherwise leaves the file alone).
func uncompressCommand(dest, name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return fmt.Sprintf("gunzip -f -k %s", dest)
	case strings.HasSuffix(name, ".bz2"):
		return fmt.Sprintf("bunzip2 -f -k %s", dest)
	case strings.HasSuffix(name, ".xz"):
		return fmt.Sprintf("unxz -f -k %s", dest)
	default:
		return "true"
	}
}
