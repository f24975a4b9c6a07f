package drive

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// API is the narrow surface of the Drive v3 API used by the access
// manager. Injected so tests can substitute a fake.
type API interface {
	GetFile(ctx context.Context, fileID, fields string) (*drive.File, error)
	ListFiles(ctx context.Context, query, fields string) ([]*drive.File, error)
	CreatePermission(ctx context.Context, fileID string, perm *drive.Permission, notify bool, message string) error
	ListPermissions(ctx context.Context, fileID string) ([]*drive.Permission, error)
	DeletePermission(ctx context.Context, fileID, permissionID string) error
}

// Client implements API against the real Drive service using a
// service account
type Client struct {
	svc *drive.Service
}

// NewClient creates a Drive client from service-account credentials.
// The private key may carry literal "\n" sequences when sourced from
// an environment variable.
func NewClient(ctx context.Context, clientEmail, privateKey string) (*Client, error) {
	if clientEmail == "" || privateKey == "" {
		return nil, fmt.Errorf("drive service account credentials are not configured")
	}

	conf := &jwt.Config{
		Email:      clientEmail,
		PrivateKey: []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
		Scopes:     []string{drive.DriveScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{svc: svc}, nil
}

// GetFile fetches file metadata by ID
func (c *Client) GetFile(ctx context.Context, fileID, fields string) (*drive.File, error) {
	return c.svc.Files.Get(fileID).
		Fields(googleapi.Field(fields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// ListFiles lists files matching a Drive query, including items from
// shared drives
func (c *Client) ListFiles(ctx context.Context, query, fields string) ([]*drive.File, error) {
	var files []*drive.File
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields(googleapi.Field(fields)).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			OrderBy("name").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		files = append(files, resp.Files...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return files, nil
		}
	}
}

// CreatePermission creates a permission on a file or folder
func (c *Client) CreatePermission(ctx context.Context, fileID string, perm *drive.Permission, notify bool, message string) error {
	call := c.svc.Permissions.Create(fileID, perm).
		SupportsAllDrives(true).
		SendNotificationEmail(notify).
		Context(ctx)
	if notify && message != "" {
		call = call.EmailMessage(message)
	}

	_, err := call.Do()
	return err
}

// ListPermissions lists permissions on a file or folder
func (c *Client) ListPermissions(ctx context.Context, fileID string) ([]*drive.Permission, error) {
	resp, err := c.svc.Permissions.List(fileID).
		Fields("permissions(id, emailAddress, type, role)").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

// DeletePermission deletes a permission by ID
func (c *Client) DeletePermission(ctx context.Context, fileID, permissionID string) error {
	return c.svc.Permissions.Delete(fileID, permissionID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}
