package theme

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

func placeholderPattern(token string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(token)
	// @@token anywhere, or "token" as the value of the "token" key
	return regexp.MustCompile(`@@` + quoted + `\b|("` + quoted + `"\s*:\s*")` + quoted + `(")`)
}

// ReplacePlaceholder replaces every occurrence of the placeholder for token in data with
// value and returns the number of replacements. Placeholders are @@token anywhere and a
// "token": "token" JSON member; other string values equal to token are left alone.
func ReplacePlaceholder(data []byte, token, value string) ([]byte, int) {
	pattern := placeholderPattern(token)
	count := len(pattern.FindAllIndex(data, -1))
	if count == 0 {
		return data, 0
	}

	replacement := "${1}" + strings.ReplaceAll(value, "$", "$$") + "${2}"
	return pattern.ReplaceAll(data, []byte(replacement)), count
}

// StampManifest writes the theme manifest with the version filled in. A manifest without
// placeholder is copied as is.
func (p *Pipeline) StampManifest(ctx context.Context) error {
	src := p.Paths.Src(Templates, p.Project.Manifest.File)
	dest := p.Paths.Dest(Templates, p.Project.Manifest.File)

	info, err := os.Stat(src)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return buildsys.ConfigError(eris.Errorf("manifest %s does not exist", p.Paths.Rel(src)))
		}
		return eris.Wrapf(err, "failed to check %s", src)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", src)
	}

	data, count := ReplacePlaceholder(data, p.Project.Manifest.Token, p.Paths.Version)
	if count == 0 {
		buildsys.Log(ctx).Debug().Msgf("%s contains no %s placeholder", p.Paths.Rel(src), p.Project.Manifest.Token)
	} else {
		buildsys.Log(ctx).Info().Msgf("Stamped version %s into %s (%d occurrences)", p.Paths.Version, p.Paths.Rel(dest), count)
	}

	return pkg.WriteFileAtomic(dest, data, info.Mode().Perm())
}
