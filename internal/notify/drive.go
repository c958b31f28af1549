package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sjawhar/ghost-minutes/internal/storage"
)

const googleDocMimeType = "application/vnd.google-apps.document"

// docFiles creates and replaces Google Docs converted from uploaded markdown.
type docFiles interface {
	Create(ctx context.Context, name, folderID string, body io.Reader) (string, error)
	Update(ctx context.Context, fileID string, body io.Reader) error
}

// DriveExporter uploads finished minutes to a Drive folder. A regenerated
// summary replaces the document created for the same meeting.
type DriveExporter struct {
	files    docFiles
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewDriveExporter(ctx context.Context, credPath, folderID string) (*DriveExporter, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newDriveExporter(driveFiles{svc: svc}, folderID), nil
}

func newDriveExporter(files docFiles, folderID string) *DriveExporter {
	return &DriveExporter{
		files:    files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}
}

func (d *DriveExporter) SummaryReady(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := strings.NewReader(storage.RenderMarkdown(n.Meeting))

	if fileID, ok := d.fileIDs[n.MeetingID]; ok {
		if err := d.files.Update(ctx, fileID, body); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	fileID, err := d.files.Create(ctx, docName(n), d.folderID, body)
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}
	d.fileIDs[n.MeetingID] = fileID
	return nil
}

func docName(n Notification) string {
	date := n.Meeting.CreatedAt.UTC().Format("2006-01-02")
	title := strings.TrimSpace(n.Meeting.Title)
	if title == "" {
		return fmt.Sprintf("minutes-%s-%s", date, n.MeetingID)
	}
	return fmt.Sprintf("%s %s", date, title)
}

type driveFiles struct {
	svc *drive.Service
}

func (f driveFiles) Create(ctx context.Context, name, folderID string, body io.Reader) (string, error) {
	file := &drive.File{Name: name, MimeType: googleDocMimeType}
	if folderID != "" {
		file.Parents = []string{folderID}
	}
	doc, err := f.svc.Files.Create(file).Media(body).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (f driveFiles) Update(ctx context.Context, fileID string, body io.Reader) error {
	_, err := f.svc.Files.Update(fileID, &drive.File{}).Media(body).Context(ctx).Do()
	return err
}
