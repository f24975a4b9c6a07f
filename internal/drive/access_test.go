package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	drive "google.golang.org/api/drive/v3"
)

type createCall struct {
	fileID string
	email  string
	notify bool
}

// fakeAPI is an in-memory Drive API
type fakeAPI struct {
	files       map[string]*drive.File
	children    map[string][]*drive.File
	permissions map[string][]*drive.Permission

	createCalls   []createCall
	failCreate    map[string]error
	failGet       map[string]error
	failListPerms map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		files:         map[string]*drive.File{},
		children:      map[string][]*drive.File{},
		permissions:   map[string][]*drive.Permission{},
		failCreate:    map[string]error{},
		failGet:       map[string]error{},
		failListPerms: map[string]error{},
	}
}

func (f *fakeAPI) addFolder(id string) {
	f.files[id] = &drive.File{Id: id, Name: id, MimeType: folderMimeType}
}

func (f *fakeAPI) addShortcut(parentID, shortcutID, targetID string) {
	sc := &drive.File{
		Id:       shortcutID,
		Name:     shortcutID,
		MimeType: shortcutMimeType,
	}
	if targetID != "" {
		sc.ShortcutDetails = &drive.FileShortcutDetails{TargetId: targetID}
		f.addFolder(targetID)
	}
	f.children[parentID] = append(f.children[parentID], sc)
}

func (f *fakeAPI) addChildFile(parentID, fileID string) {
	child := &drive.File{Id: fileID, Name: fileID, MimeType: "application/pdf"}
	f.files[fileID] = child
	f.children[parentID] = append(f.children[parentID], child)
}

func (f *fakeAPI) GetFile(_ context.Context, fileID, _ string) (*drive.File, error) {
	if err, ok := f.failGet[fileID]; ok {
		return nil, err
	}
	file, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return file, nil
}

func (f *fakeAPI) ListFiles(_ context.Context, query, _ string) ([]*drive.File, error) {
	for parentID, children := range f.children {
		if !strings.Contains(query, fmt.Sprintf("'%s' in parents", parentID)) {
			continue
		}
		if !strings.Contains(query, shortcutMimeType) {
			return children, nil
		}
		var shortcuts []*drive.File
		for _, c := range children {
			if c.MimeType == shortcutMimeType {
				shortcuts = append(shortcuts, c)
			}
		}
		return shortcuts, nil
	}
	return nil, nil
}

func (f *fakeAPI) CreatePermission(_ context.Context, fileID string, perm *drive.Permission, notify bool, _ string) error {
	f.createCalls = append(f.createCalls, createCall{fileID: fileID, email: perm.EmailAddress, notify: notify})
	if err, ok := f.failCreate[fileID]; ok {
		return err
	}
	f.permissions[fileID] = append(f.permissions[fileID], &drive.Permission{
		Id:           fmt.Sprintf("perm-%s-%d", fileID, len(f.permissions[fileID])),
		Role:         perm.Role,
		Type:         perm.Type,
		EmailAddress: perm.EmailAddress,
	})
	return nil
}

func (f *fakeAPI) ListPermissions(_ context.Context, fileID string) ([]*drive.Permission, error) {
	if err, ok := f.failListPerms[fileID]; ok {
		return nil, err
	}
	return f.permissions[fileID], nil
}

func (f *fakeAPI) DeletePermission(_ context.Context, fileID, permissionID string) error {
	perms := f.permissions[fileID]
	for i, p := range perms {
		if p.Id == permissionID {
			f.permissions[fileID] = append(perms[:i], perms[i+1:]...)
			return nil
		}
	}
	return errors.New("permission not found")
}

// fakeCache is an in-memory access-result cache
type fakeCache struct {
	entries map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]bool{}}
}

func cacheKey(folderID, email string) string {
	return folderID + "/" + email
}

func (c *fakeCache) GetAccessResult(_ context.Context, folderID, email string) (bool, bool, error) {
	allowed, hit := c.entries[cacheKey(folderID, email)]
	return allowed, hit, nil
}

func (c *fakeCache) SetAccessResult(_ context.Context, folderID, email string, allowed bool, _ time.Duration) error {
	c.entries[cacheKey(folderID, email)] = allowed
	return nil
}

func (c *fakeCache) InvalidateAccessResult(_ context.Context, folderID, email string) error {
	delete(c.entries, cacheKey(folderID, email))
	return nil
}

const buyerEmail = "buyer@example.com"

func TestGrantAccessFanOut(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.addShortcut("bundle", "sc-2", "target-2")
	api.addChildFile("bundle", "syllabus.pdf")

	m := NewAccessManager(api, newFakeCache(), "Your notes are ready")

	ok := m.GrantAccess(context.Background(), "bundle", buyerEmail)
	assert.True(t, ok)

	// main folder plus both shortcut targets, never the plain file
	require.Len(t, api.createCalls, 3)
	assert.Equal(t, createCall{fileID: "bundle", email: buyerEmail, notify: true}, api.createCalls[0])
	assert.Equal(t, createCall{fileID: "target-1", email: buyerEmail, notify: false}, api.createCalls[1])
	assert.Equal(t, createCall{fileID: "target-2", email: buyerEmail, notify: false}, api.createCalls[2])
}

func TestGrantAccessMissingFolder(t *testing.T) {
	api := newFakeAPI()

	m := NewAccessManager(api, newFakeCache(), "")

	ok := m.GrantAccess(context.Background(), "nope", buyerEmail)
	assert.False(t, ok)
	assert.Empty(t, api.createCalls, "no side effects when the folder is unreachable")
}

func TestGrantAccessShortcutFailureIsNonFatal(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.addShortcut("bundle", "sc-2", "target-2")
	api.failCreate["target-1"] = errors.New("permission denied")

	m := NewAccessManager(api, newFakeCache(), "")

	ok := m.GrantAccess(context.Background(), "bundle", buyerEmail)
	assert.True(t, ok, "shortcut failures must not fail the grant")

	// the failing target did not stop the remaining one
	require.Len(t, api.createCalls, 3)
	assert.Equal(t, "target-2", api.createCalls[2].fileID)
	assert.NotEmpty(t, api.permissions["target-2"])
}

func TestGrantAccessMainFailure(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.failCreate["bundle"] = errors.New("quota exceeded")

	m := NewAccessManager(api, newFakeCache(), "")

	ok := m.GrantAccess(context.Background(), "bundle", buyerEmail)
	assert.False(t, ok)
}

func TestListShortcutTargetsSkipsDangling(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-good", "target-1")
	api.addShortcut("bundle", "sc-dangling", "") // no target metadata

	m := NewAccessManager(api, newFakeCache(), "")

	targets, err := m.ListShortcutTargets(context.Background(), "bundle")
	require.NoError(t, err)
	assert.Equal(t, []string{"target-1"}, targets)
}

func TestCheckAccessViaShortcutTarget(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.permissions["target-1"] = []*drive.Permission{
		{Id: "p1", Type: permTypeUser, Role: roleReader, EmailAddress: buyerEmail},
	}

	m := NewAccessManager(api, newFakeCache(), "")

	assert.True(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
	assert.False(t, m.CheckAccess(context.Background(), "bundle", "other@example.com"))
}

func TestGrantAccessDropsCachedDenial(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")

	cache := newFakeCache()
	m := NewAccessManager(api, cache, "")

	// buyer was checked before buying, the denial is cached
	assert.False(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
	allowed, hit := cache.entries[cacheKey("bundle", buyerEmail)]
	require.True(t, hit)
	require.False(t, allowed)

	require.True(t, m.GrantAccess(context.Background(), "bundle", buyerEmail))

	// the grant must be visible immediately, not after the TTL
	assert.True(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
}

func TestCheckAccessServedFromCache(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.permissions["bundle"] = []*drive.Permission{
		{Id: "p1", Type: permTypeUser, Role: roleReader, EmailAddress: buyerEmail},
	}

	m := NewAccessManager(api, newFakeCache(), "")

	assert.True(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))

	// within the TTL the host is not consulted again
	api.failListPerms["bundle"] = errors.New("rate limited")
	assert.True(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
}

func TestCheckAccessHostErrorNotCached(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.failListPerms["bundle"] = errors.New("backend unavailable")

	cache := newFakeCache()
	m := NewAccessManager(api, cache, "")

	assert.False(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
	_, hit := cache.entries[cacheKey("bundle", buyerEmail)]
	assert.False(t, hit, "a degraded lookup must not pin a denial")

	// the host recovers and the permission shows through right away
	delete(api.failListPerms, "bundle")
	api.permissions["bundle"] = []*drive.Permission{
		{Id: "p1", Type: permTypeUser, Role: roleReader, EmailAddress: buyerEmail},
	}
	assert.True(t, m.CheckAccess(context.Background(), "bundle", buyerEmail))
}

func TestRevokeAccess(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.permissions["bundle"] = []*drive.Permission{
		{Id: "p-main", Type: permTypeUser, Role: roleReader, EmailAddress: buyerEmail},
	}
	api.permissions["target-1"] = []*drive.Permission{
		{Id: "p-target", Type: permTypeUser, Role: roleReader, EmailAddress: buyerEmail},
	}

	m := NewAccessManager(api, newFakeCache(), "")

	assert.True(t, m.RevokeAccess(context.Background(), "bundle", buyerEmail))
	assert.Empty(t, api.permissions["bundle"])
	assert.Empty(t, api.permissions["target-1"])

	// nothing left to revoke on the main folder
	assert.False(t, m.RevokeAccess(context.Background(), "bundle", buyerEmail))
}

func TestFolderContentsResolvesShortcuts(t *testing.T) {
	api := newFakeAPI()
	api.addFolder("bundle")
	api.addChildFile("bundle", "syllabus.pdf")
	api.addShortcut("bundle", "sc-1", "target-1")
	api.addShortcut("bundle", "sc-broken", "target-gone")
	api.failGet["target-gone"] = errors.New("not found")

	m := NewAccessManager(api, newFakeCache(), "")

	files, err := m.FolderContents(context.Background(), "bundle")
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "syllabus.pdf", files[0].ID)
	assert.Equal(t, "target-1", files[1].ID)
	assert.Equal(t, "sc-1 (Shortcut)", files[1].Name)
	assert.Equal(t, "sc-broken", files[2].ID)
	assert.Equal(t, "sc-broken (Shortcut - Target Inaccessible)", files[2].Name)
}
