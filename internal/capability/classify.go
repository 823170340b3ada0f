package capability

import (
	"context"
	"mime"
	"net/url"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/solatis/mario/internal/logging"
	"github.com/solatis/mario/internal/types"
)

// HeadFetcher looks up the media type of a URL.
type HeadFetcher interface {
	Head(ctx context.Context, url string) (string, error)
}

// MIMEClassifier detects media types the way the plumber always has:
//
//	url   guessed from the path extension, else the Content-Type of a HEAD
//	raw   sniffed from the bytes
//	text  always text/plain
//
// With strict lookup the extension guess is skipped and every url costs a
// HEAD request. Lookup failures yield "" (unknown type), never an error.
type MIMEClassifier struct {
	head   HeadFetcher
	strict bool
	logger zerolog.Logger
}

// NewMIMEClassifier returns a classifier using head for url lookups. head
// may be nil, in which case unguessable urls are unknown.
func NewMIMEClassifier(head HeadFetcher, strict bool) *MIMEClassifier {
	return &MIMEClassifier{
		head:   head,
		strict: strict,
		logger: logging.GetLogger("capability.classify"),
	}
}

// Classify implements rules.Classifier.
func (c *MIMEClassifier) Classify(ctx context.Context, kind types.Kind, value string) (string, error) {
	switch kind {
	case types.KindURL:
		return c.classifyURL(ctx, value), nil
	case types.KindRaw:
		return MediaType(mimetype.Detect([]byte(value)).String()), nil
	case types.KindText:
		return "text/plain", nil
	default:
		return "", nil
	}
}

func (c *MIMEClassifier) classifyURL(ctx context.Context, value string) string {
	if !c.strict {
		if t := guessFromExtension(value); t != "" {
			return t
		}
		c.logger.Debug().Str("url", value).Msg("Failed mimetype guessing, trying Content-Type header")
	}
	if c.head == nil {
		return ""
	}
	t, err := c.head.Head(ctx, value)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", value).Msg("Failed fetching Content-Type")
		return ""
	}
	c.logger.Debug().Str("contentType", t).Msg("Content-Type")
	return t
}

func guessFromExtension(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" {
		return ""
	}
	return MediaType(mime.TypeByExtension(ext))
}
