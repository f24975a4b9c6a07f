package drive

import (
	"context"
	"fmt"
	"time"

	"noteshub/internal/util"

	"go.uber.org/zap"
	drive "google.golang.org/api/drive/v3"
)

const (
	shortcutMimeType = "application/vnd.google-apps.shortcut"
	folderMimeType   = "application/vnd.google-apps.folder"

	roleReader   = "reader"
	permTypeUser = "user"

	accessCacheTTL = 5 * time.Minute
)

// AccessCache is a short-TTL store for access-check outcomes. The
// redis client satisfies it.
type AccessCache interface {
	GetAccessResult(ctx context.Context, folderID, email string) (allowed, hit bool, err error)
	SetAccessResult(ctx context.Context, folderID, email string, allowed bool, ttl time.Duration) error
	InvalidateAccessResult(ctx context.Context, folderID, email string) error
}

// File is folder-content metadata returned to buyers
type File struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mime_type"`
	WebViewLink    string `json:"web_view_link"`
	WebContentLink string `json:"web_content_link,omitempty"`
	Size           int64  `json:"size,omitempty"`
}

// AccessManager grants, revokes and checks read access to purchased
// folders. A purchased folder may contain only shortcut entries that
// point at the real content folders, so every operation fans out
// across one level of shortcut indirection. Deeper nesting
// (shortcut-of-shortcut) is not resolved.
type AccessManager struct {
	api           API
	cache         AccessCache
	notifyMessage string
	logger        *zap.Logger
}

// NewAccessManager creates a new access manager
func NewAccessManager(api API, cache AccessCache, notifyMessage string) *AccessManager {
	return &AccessManager{
		api:           api,
		cache:         cache,
		notifyMessage: notifyMessage,
		logger:        util.GetLogger(),
	}
}

// FolderExists probes whether a folder is reachable by the service
// account. Any fetch error counts as "does not exist".
func (m *AccessManager) FolderExists(ctx context.Context, folderID string) bool {
	_, err := m.api.GetFile(ctx, folderID, "id, name")
	if err != nil {
		m.logger.Warn("Folder not found or not accessible",
			zap.String("folder_id", folderID),
			zap.Error(err))
		return false
	}
	return true
}

// ListShortcutTargets resolves the immediate shortcut children of a
// folder to their target IDs. Non-shortcut children are ignored and a
// shortcut without target metadata is skipped.
func (m *AccessManager) ListShortcutTargets(ctx context.Context, folderID string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false",
		folderID, shortcutMimeType)

	files, err := m.api.ListFiles(ctx, query, "files(id, name, shortcutDetails)")
	if err != nil {
		m.logger.Error("Failed to list shortcut folders",
			zap.String("folder_id", folderID),
			zap.Error(err))
		return nil, err
	}

	var targets []string
	for _, f := range files {
		if f.ShortcutDetails == nil || f.ShortcutDetails.TargetId == "" {
			continue
		}
		targets = append(targets, f.ShortcutDetails.TargetId)
	}
	return targets, nil
}

// GrantAccess creates a reader permission for the user on the folder
// and on every shortcut target inside it. Only the main-folder grant
// sends a notification email and only it determines the result;
// shortcut grants are best-effort.
func (m *AccessManager) GrantAccess(ctx context.Context, folderID, userEmail string) bool {
	ctx, span := util.StartSpan(ctx, "AccessManager.GrantAccess")
	defer span.End()

	start := time.Now()
	defer func() {
		util.DriveGrantLatency.Observe(time.Since(start).Seconds())
	}()

	if !m.FolderExists(ctx, folderID) {
		util.DriveGrantsTotal.WithLabelValues("main", "folder_missing").Inc()
		return false
	}

	perm := &drive.Permission{
		Role:         roleReader,
		Type:         permTypeUser,
		EmailAddress: userEmail,
	}

	if err := m.api.CreatePermission(ctx, folderID, perm, true, m.notifyMessage); err != nil {
		m.logger.Error("Failed to grant access to main folder",
			zap.String("folder_id", folderID),
			zap.String("user_email", userEmail),
			zap.Error(err))
		util.DriveGrantsTotal.WithLabelValues("main", "error").Inc()
		return false
	}
	util.DriveGrantsTotal.WithLabelValues("main", "ok").Inc()
	// drop any cached denial from before the grant
	if err := m.cache.InvalidateAccessResult(ctx, folderID, userEmail); err != nil {
		m.logger.Warn("Access cache invalidation failed",
			zap.String("folder_id", folderID),
			zap.Error(err))
	}

	// the listing error is already logged, failed fan-out never undoes
	// the main grant
	targets, _ := m.ListShortcutTargets(ctx, folderID)
	for _, targetID := range targets {
		shortcutPerm := &drive.Permission{
			Role:         roleReader,
			Type:         permTypeUser,
			EmailAddress: userEmail,
		}
		// no notification per shortcut, one email per bundle is enough
		if err := m.api.CreatePermission(ctx, targetID, shortcutPerm, false, ""); err != nil {
			m.logger.Error("Failed to grant access to shortcut target",
				zap.String("folder_id", folderID),
				zap.String("target_id", targetID),
				zap.String("user_email", userEmail),
				zap.Error(err))
			util.DriveGrantsTotal.WithLabelValues("shortcut", "error").Inc()
			continue
		}
		util.DriveGrantsTotal.WithLabelValues("shortcut", "ok").Inc()
	}

	return true
}

// RevokeAccess removes the user's permission from the folder and from
// each shortcut target. The result reflects only the main folder:
// true iff a matching permission was found and deleted there.
func (m *AccessManager) RevokeAccess(ctx context.Context, folderID, userEmail string) bool {
	ctx, span := util.StartSpan(ctx, "AccessManager.RevokeAccess")
	defer span.End()

	revoked := m.revokeOn(ctx, folderID, userEmail)
	if revoked {
		util.DriveRevokesTotal.WithLabelValues("ok").Inc()
	} else {
		util.DriveRevokesTotal.WithLabelValues("not_found").Inc()
	}

	targets, _ := m.ListShortcutTargets(ctx, folderID)
	for _, targetID := range targets {
		m.revokeOn(ctx, targetID, userEmail)
	}

	if err := m.cache.InvalidateAccessResult(ctx, folderID, userEmail); err != nil {
		m.logger.Warn("Access cache invalidation failed",
			zap.String("folder_id", folderID),
			zap.Error(err))
	}

	return revoked
}

func (m *AccessManager) revokeOn(ctx context.Context, fileID, userEmail string) bool {
	perms, err := m.api.ListPermissions(ctx, fileID)
	if err != nil {
		m.logger.Error("Failed to list permissions",
			zap.String("file_id", fileID),
			zap.Error(err))
		return false
	}

	for _, p := range perms {
		if p.Type != permTypeUser || p.EmailAddress != userEmail {
			continue
		}
		if err := m.api.DeletePermission(ctx, fileID, p.Id); err != nil {
			m.logger.Error("Failed to delete permission",
				zap.String("file_id", fileID),
				zap.String("user_email", userEmail),
				zap.Error(err))
			return false
		}
		return true
	}
	return false
}

// CheckAccess reports whether the user holds a permission on the
// folder directly or on any of its shortcut targets. Outcomes are
// cached for a short TTL. A lookup that hit a host error is reported
// as no access but never cached, so a transient outage does not pin a
// denial.
func (m *AccessManager) CheckAccess(ctx context.Context, folderID, userEmail string) bool {
	ctx, span := util.StartSpan(ctx, "AccessManager.CheckAccess")
	defer span.End()

	if allowed, hit, err := m.cache.GetAccessResult(ctx, folderID, userEmail); err == nil && hit {
		return allowed
	}

	allowed, degraded := m.lookupAccess(ctx, folderID, userEmail)
	if degraded {
		return allowed
	}
	if err := m.cache.SetAccessResult(ctx, folderID, userEmail, allowed, accessCacheTTL); err != nil {
		m.logger.Warn("Access cache write failed",
			zap.String("folder_id", folderID),
			zap.Error(err))
	}
	return allowed
}

func (m *AccessManager) lookupAccess(ctx context.Context, folderID, userEmail string) (allowed, degraded bool) {
	ok, err := m.hasPermission(ctx, folderID, userEmail)
	if ok {
		return true, false
	}
	degraded = err != nil

	targets, err := m.ListShortcutTargets(ctx, folderID)
	if err != nil {
		degraded = true
	}
	for _, targetID := range targets {
		ok, err := m.hasPermission(ctx, targetID, userEmail)
		if ok {
			return true, false
		}
		if err != nil {
			degraded = true
		}
	}
	return false, degraded
}

func (m *AccessManager) hasPermission(ctx context.Context, fileID, userEmail string) (bool, error) {
	perms, err := m.api.ListPermissions(ctx, fileID)
	if err != nil {
		m.logger.Error("Failed to list permissions",
			zap.String("file_id", fileID),
			zap.Error(err))
		return false, err
	}

	for _, p := range perms {
		if p.Type == permTypeUser && p.EmailAddress == userEmail {
			return true, nil
		}
	}
	return false, nil
}

// FolderContents lists the files inside a purchased folder, resolving
// shortcut entries to their targets. A shortcut whose target is
// inaccessible is returned as-is so the buyer can see it exists.
func (m *AccessManager) FolderContents(ctx context.Context, folderID string) ([]File, error) {
	ctx, span := util.StartSpan(ctx, "AccessManager.FolderContents")
	defer span.End()

	query := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	fields := "files(id, name, mimeType, webViewLink, webContentLink, size, shortcutDetails)"

	entries, err := m.api.ListFiles(ctx, query, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch folder contents: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.MimeType != shortcutMimeType {
			files = append(files, File{
				ID:             entry.Id,
				Name:           entry.Name,
				MimeType:       entry.MimeType,
				WebViewLink:    entry.WebViewLink,
				WebContentLink: entry.WebContentLink,
				Size:           entry.Size,
			})
			continue
		}

		if entry.ShortcutDetails == nil || entry.ShortcutDetails.TargetId == "" {
			continue
		}

		target, err := m.api.GetFile(ctx, entry.ShortcutDetails.TargetId,
			"id, name, mimeType, webViewLink, webContentLink, size")
		if err != nil {
			m.logger.Warn("Shortcut target inaccessible",
				zap.String("shortcut_id", entry.Id),
				zap.String("target_id", entry.ShortcutDetails.TargetId),
				zap.Error(err))
			files = append(files, File{
				ID:          entry.Id,
				Name:        entry.Name + " (Shortcut - Target Inaccessible)",
				MimeType:    entry.MimeType,
				WebViewLink: entry.WebViewLink,
			})
			continue
		}

		files = append(files, File{
			ID:             target.Id,
			Name:           entry.Name + " (Shortcut)",
			MimeType:       target.MimeType,
			WebViewLink:    target.WebViewLink,
			WebContentLink: target.WebContentLink,
			Size:           target.Size,
		})
	}

	return files, nil
}
