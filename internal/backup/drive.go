package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Drive app properties used to find a user's file without relying on names.
const (
	drivePropUser     = "nl_user_id"
	drivePropKey      = "nl_key"
	drivePropChecksum = "nl_checksum"
)

// DriveConfig configures the Google Drive backend.
type DriveConfig struct {
	// CredentialsFile is a service account or authorized-user JSON file.
	CredentialsFile string
	// FolderID restricts files to one Drive folder when set.
	FolderID string
}

// Drive stores payloads as files in Google Drive, one file per (user, key).
type Drive struct {
	files    *drive.FilesService
	folderID string
}

// NewDrive authenticates with the credentials file and opens a Drive client
// limited to files this application creates.
func NewDrive(ctx context.Context, cfg DriveConfig) (*Drive, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}
	srv, err := drive.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{files: srv.Files, folderID: cfg.FolderID}, nil
}

func (d *Drive) Store(ctx context.Context, userID, key string, payload []byte) error {
	existing, err := d.find(ctx, userID, key)
	if err != nil {
		return syncErr("drive find", err)
	}
	props := map[string]string{
		drivePropUser:     userID,
		drivePropKey:      key,
		drivePropChecksum: Checksum(payload),
	}

	if existing == nil {
		f := &drive.File{
			Name:          driveFileName(userID, key),
			MimeType:      "text/csv",
			AppProperties: props,
		}
		if d.folderID != "" {
			f.Parents = []string{d.folderID}
		}
		if _, err := d.files.Create(f).Media(bytes.NewReader(payload)).Context(ctx).Do(); err != nil {
			return syncErr("drive create", err)
		}
		return nil
	}

	if _, err := d.files.Update(existing.Id, &drive.File{AppProperties: props}).
		Media(bytes.NewReader(payload)).Context(ctx).Do(); err != nil {
		return syncErr("drive update", err)
	}
	return nil
}

func (d *Drive) Fetch(ctx context.Context, userID, key string) ([]byte, error) {
	f, err := d.find(ctx, userID, key)
	if err != nil {
		return nil, syncErr("drive find", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}

	resp, err := d.files.Get(f.Id).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, syncErr("drive download", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncErr("drive read", err)
	}
	if err := verify(payload, f.AppProperties[drivePropChecksum]); err != nil {
		return nil, err
	}
	return payload, nil
}

// find returns the file for (userID, key), or nil when there is none.
func (d *Drive) find(ctx context.Context, userID, key string) (*drive.File, error) {
	list, err := d.files.List().
		Q(driveQuery(d.folderID, userID, key)).
		Fields("files(id, name, appProperties)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

var driveQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// driveQuery builds the Drive search expression matching one (user, key) file.
func driveQuery(folderID, userID, key string) string {
	q := fmt.Sprintf(
		"appProperties has { key='%s' and value='%s' } and appProperties has { key='%s' and value='%s' } and trashed = false",
		drivePropUser, driveQuoter.Replace(userID), drivePropKey, driveQuoter.Replace(key))
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", driveQuoter.Replace(folderID))
	}
	return q
}

// driveFileName is the visible name; lookups go through app properties.
func driveFileName(userID, key string) string {
	return userID + "_" + key
}

func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
