package submission

import (
	"regexp"
	"strings"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

const (
	defaultTag      = "latest"
	defaultRegistry = "docker.io"
)

var (
	nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._/-]*[a-z0-9]$|^[a-z0-9]$`)
	tagRe  = regexp.MustCompile(`^[\w][\w.-]{0,127}$`)
)

// Reference is the normalized (registry, name, tag) triple.
type Reference struct {
	Registry string
	Name     string
	Tag      string
}

// Normalize applies the five ordered reference normalization rules and
// validates the result.
func Normalize(rawName, rawTag, rawRegistry string) (Reference, error) {
	name := strings.ToLower(strings.Trim(rawName, "/"))

	tag := rawTag
	if tag == "" && strings.Contains(name, ":") {
		idx := strings.LastIndex(name, ":")
		tag = name[idx+1:]
		name = name[:idx]
	}

	registry := rawRegistry
	if registry == "" {
		if idx := strings.Index(name, "/"); idx > 0 {
			segment := name[:idx]
			if strings.Contains(segment, ".") || strings.Contains(segment, ":") || segment == "localhost" {
				registry = segment
				name = name[idx+1:]
			}
		}
	}

	if tag == "" {
		tag = defaultTag
	}
	if registry == "" {
		registry = defaultRegistry
	}

	if !nameRe.MatchString(name) {
		return Reference{}, scanerr.New(scanerr.CodeValidation, "invalid image name: "+rawName, nil)
	}
	if !tagRe.MatchString(tag) || strings.HasPrefix(tag, "-") || strings.HasPrefix(tag, ".") {
		return Reference{}, scanerr.New(scanerr.CodeValidation, "invalid image tag: "+tag, nil)
	}

	return Reference{Registry: registry, Name: name, Tag: tag}, nil
}
