package server

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kiln/internal/config"
	"kiln/internal/job"
	"kiln/internal/processors"
	"kiln/internal/urlattrs"
)

// Option keys understood by URLFor.
const (
	OptName = "name"
	OptHost = "host"
)

// URLBuilder formats <host><prefix>/<token>[/<name>]?sha=<code>.
type URLBuilder struct {
	Host   string
	Prefix string
}

// NewURLBuilder reads the host and prefix from cfg.
func NewURLBuilder(cfg *config.Config) *URLBuilder {
	return &URLBuilder{
		Host:   cfg.Server.URLHost,
		Prefix: cfg.Server.URLPrefix,
	}
}

// URLFor implements job.URLBuilder. It returns "" when the job cannot be
// serialized.
func (b *URLBuilder) URLFor(j *job.Job, opts map[string]any) string {
	token, err := j.Serialize()
	if err != nil {
		return ""
	}
	host := b.Host
	if v, ok := opts[OptHost].(string); ok {
		host = v
	}
	name := urlName(j.URLAttrs())
	if v, ok := opts[OptName]; ok {
		name, _ = v.(string)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(host, "/"))
	sb.WriteString(normalizePrefix(b.Prefix))
	sb.WriteByte('/')
	sb.WriteString(token)
	if name != "" {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(name))
	}
	sb.WriteString("?sha=")
	sb.WriteString(url.QueryEscape(j.SHA()))
	return sb.String()
}

// urlName appends the ext attribute to the name attribute unless the name
// already ends with it. The name is NFC-normalized.
func urlName(attrs urlattrs.Attrs) string {
	name := norm.NFC.String(attrs.Name())
	ext := strings.TrimPrefix(attrs.String(processors.AttrExt), ".")
	if name == "" || ext == "" {
		return name
	}
	if strings.EqualFold(path.Ext(name), "."+ext) {
		return name
	}
	return name + "." + ext
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
