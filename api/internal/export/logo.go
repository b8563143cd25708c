package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxLogoBytes - верхняя граница размера логотипа.
const maxLogoBytes = 5 << 20

// LogoSource - один кандидат на логотип.
type LogoSource interface {
	Key() string
	Load(ctx context.Context) ([]byte, error)
}

type FileLogo struct {
	Path string
}

func (f FileLogo) Key() string { return "file:" + f.Path }

func (f FileLogo) Load(context.Context) ([]byte, error) {
	fd, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return io.ReadAll(io.LimitReader(fd, maxLogoBytes))
}

type URLLogo struct {
	URL   string
	httpc *http.Client
}

func NewURLLogo(url string, timeout time.Duration) URLLogo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return URLLogo{URL: url, httpc: &http.Client{Timeout: timeout}}
}

func (u URLLogo) Key() string { return "url:" + u.URL }

func (u URLLogo) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return nil, err
	}
	httpc := u.httpc
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("logo %s: status %d", u.URL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
}

// ParseSources превращает список путей и URL в источники: сначала локальные, потом удалённые.
// Порядок внутри каждой группы сохраняется.
func ParseSources(list []string, timeout time.Duration) []LogoSource {
	var local, remote []LogoSource
	for _, s := range list {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
		case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
			remote = append(remote, NewURLLogo(s, timeout))
		default:
			local = append(local, FileLogo{Path: s})
		}
	}
	return append(local, remote...)
}
