// Package audiosrc loads the recording behind a meeting's audio reference.
package audiosrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes = 2 << 30

var (
	ErrNotFound       = errors.New("audio not found")
	ErrUnsupported    = errors.New("unsupported audio reference")
	ErrTooLarge       = errors.New("audio exceeds size limit")
	ErrBlobNotEnabled = errors.New("azure blob storage is not configured")
	ErrForbidden      = errors.New("audio reference not allowed")
)

type Audio struct {
	Data     []byte
	Filename string
}

// BlobDownloader is the subset of *azblob.Client the fetcher needs.
type BlobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

type Options struct {
	// AzureConnectionString enables azblob:// references.
	AzureConnectionString string
	HTTPClient            *http.Client
	MaxBytes              int64

	// LocalRoot is the only directory local references may read from.
	// Relative references resolve inside it. Empty disables local files.
	LocalRoot string
	// Schemes lists the accepted reference schemes ("file" covers plain
	// paths). Nil accepts every supported scheme.
	Schemes []string
	// Hosts, when set, lists the hosts http(s) references may point at.
	Hosts []string
}

type Fetcher struct {
	http      *http.Client
	blob      BlobDownloader
	maxBytes  int64
	localRoot string
	schemes   []string
	hosts     []string
}

func New(opts Options) (*Fetcher, error) {
	f := &Fetcher{
		http:     opts.HTTPClient,
		maxBytes: opts.MaxBytes,
		schemes:  opts.Schemes,
		hosts:    opts.Hosts,
	}
	if f.http == nil {
		f.http = &http.Client{Timeout: 10 * time.Minute}
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if opts.LocalRoot != "" {
		root, err := filepath.Abs(opts.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve audio root: %w", err)
		}
		f.localRoot = root
	}
	if opts.AzureConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(opts.AzureConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create azure blob client: %w", err)
		}
		f.blob = client
	}
	return f, nil
}

// WithBlobDownloader swaps the blob client, mostly for tests.
func (f *Fetcher) WithBlobDownloader(d BlobDownloader) *Fetcher {
	f.blob = d
	return f
}

type reference struct {
	scheme string
	local  string
	url    *url.URL
}

// Check reports whether ref is a reference Fetch would accept, without
// touching the file system or the network.
func (f *Fetcher) Check(ref string) error {
	_, err := f.parse(ref)
	return err
}

// Fetch resolves ref, which is a local path, a file:// URL, an http(s) URL or
// azblob://container/blob.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Audio, error) {
	r, err := f.parse(ref)
	if err != nil {
		return Audio{}, err
	}

	switch r.scheme {
	case "file":
		return f.fetchFile(r.local)
	case "azblob":
		return f.fetchBlob(ctx, r.url)
	default:
		return f.fetchHTTP(ctx, r.url)
	}
}

func (f *Fetcher) parse(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, fmt.Errorf("%w: empty", ErrUnsupported)
	}

	r := reference{scheme: "file", local: ref}
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		r = reference{scheme: strings.ToLower(u.Scheme), url: u}
		if r.scheme == "file" {
			r.local = u.Path
		}
	}

	switch r.scheme {
	case "file", "http", "https", "azblob":
	default:
		return reference{}, fmt.Errorf("%w: scheme %q", ErrUnsupported, r.scheme)
	}
	if f.schemes != nil && !slices.Contains(f.schemes, r.scheme) {
		return reference{}, fmt.Errorf("%w: scheme %q is not enabled", ErrForbidden, r.scheme)
	}

	switch r.scheme {
	case "file":
		local, err := f.localPath(r.local)
		if err != nil {
			return reference{}, err
		}
		r.local = local
	case "http", "https":
		if len(f.hosts) > 0 && !slices.Contains(f.hosts, strings.ToLower(r.url.Hostname())) {
			return reference{}, fmt.Errorf("%w: host %q", ErrForbidden, r.url.Hostname())
		}
	}
	return r, nil
}

// localPath returns p relative to the local root, rejecting anything that
// would leave it.
func (f *Fetcher) localPath(p string) (string, error) {
	if f.localRoot == "" {
		return "", fmt.Errorf("%w: local files are disabled", ErrForbidden)
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(f.localRoot, p)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrForbidden, p)
		}
		p = rel
	}
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrForbidden, p, f.localRoot)
	}
	return p, nil
}

// fetchFile opens rel through an os.Root, so symlinks cannot escape the
// local root either.
func (f *Fetcher) fetchFile(rel string) (Audio, error) {
	root, err := os.OpenRoot(f.localRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Audio{}, fmt.Errorf("%w: %s", ErrNotFound, f.localRoot)
		}
		return Audio{}, fmt.Errorf("open audio root: %w", err)
	}
	defer root.Close()

	file, err := root.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Audio{}, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return Audio{}, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	data, err := f.readAll(file)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: data, Filename: filepath.Base(rel)}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (Audio, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Audio{}, fmt.Errorf("build audio request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Audio{}, fmt.Errorf("%w: %s", ErrNotFound, u.Redacted())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Audio{}, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return Audio{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: data, Filename: nameFromPath(u.Path)}, nil
}

func (f *Fetcher) fetchBlob(ctx context.Context, u *url.URL) (Audio, error) {
	if f.blob == nil {
		return Audio{}, ErrBlobNotEnabled
	}
	container := u.Host
	blobName := strings.TrimPrefix(u.Path, "/")
	if container == "" || blobName == "" {
		return Audio{}, fmt.Errorf("%w: azblob reference needs container and blob", ErrUnsupported)
	}

	resp, err := f.blob.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return Audio{}, fmt.Errorf("%w: %s/%s", ErrNotFound, container, blobName)
		}
		return Audio{}, fmt.Errorf("download blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength != nil && *resp.ContentLength > f.maxBytes {
		return Audio{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, *resp.ContentLength)
	}

	data, err := f.readAll(resp.Body)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: data, Filename: nameFromPath(blobName)}, nil
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}

func nameFromPath(p string) string {
	name := path.Base(p)
	if name == "." || name == "/" {
		return "audio"
	}
	return name
}
