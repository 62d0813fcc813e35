package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedout/avatarbackend/database"
	"github.com/linkedout/avatarbackend/media"
	"github.com/linkedout/avatarbackend/models"
)

// fakeStore records saves in memory and can be told to fail
type fakeStore struct {
	objects  map[string][]byte
	saveErr  error
	saveKeys []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Save(assetType media.AssetType, dirHint, filenameHint string, data io.Reader, overwrite bool) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%ss/%s/%s", assetType, dirHint, filenameHint)
	if _, exists := f.objects[key]; exists && !overwrite {
		return "", media.ErrObjectExists
	}
	f.objects[key] = content
	f.saveKeys = append(f.saveKeys, key)
	return key, nil
}

func (f *fakeStore) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	content, ok := f.objects[relativePath]
	if !ok {
		return nil, nil, fmt.Errorf("asset not found at '%s'", relativePath)
	}
	return io.NopCloser(bytes.NewReader(content)), nil, nil
}

func (f *fakeStore) Delete(relativePath string) error {
	delete(f.objects, relativePath)
	return nil
}

func (f *fakeStore) PublicURL(relativePath string) string {
	return "http://localhost:8080/api/" + relativePath
}

func (f *fakeStore) List(assetType media.AssetType, dirHint string) ([]string, error) {
	prefix := fmt.Sprintf("%ss/%s/", assetType, dirHint)
	var names []string
	for key := range f.objects {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			names = append(names, key[len(prefix):])
		}
	}
	return names, nil
}

func (f *fakeStore) EnsureDir(assetType media.AssetType) (string, error) {
	return string(assetType), nil
}

// fakeProfileRepo records SetPhotoRefs calls
type fakeProfileRepo struct {
	photoURL    string
	headshotURL string
	setCalls    int
	clearCalls  int
	setErr      error
}

func (f *fakeProfileRepo) GetByUserID(userID uint) (*models.Profile, error) { return nil, nil }
func (f *fakeProfileRepo) Upsert(profile *models.Profile) error             { return nil }
func (f *fakeProfileRepo) SetPhotoRefs(userID uint, photoURL, headshotURL string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls++
	f.photoURL = photoURL
	f.headshotURL = headshotURL
	return nil
}
func (f *fakeProfileRepo) ClearPhotoRefs(userID uint) error {
	f.clearCalls++
	f.photoURL = ""
	f.headshotURL = ""
	return nil
}

// fakeAvatarRepo records history writes
type fakeAvatarRepo struct {
	records   []*models.AvatarRecord
	recordErr error
	deleted   []string
}

func (f *fakeAvatarRepo) RecordSave(record *models.AvatarRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, record)
	return nil
}
func (f *fakeAvatarRepo) GetByObjectKey(key string) (*models.AvatarRecord, error) { return nil, nil }
func (f *fakeAvatarRepo) ListByUser(userID uint, filter database.AvatarHistoryFilter) ([]database.AvatarHistoryRow, error) {
	return nil, nil
}
func (f *fakeAvatarRepo) DeleteByObjectKey(key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func pngSource(t *testing.T, w, h int) media.MediaSource {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h)), imaging.PNG))
	return media.MediaSource{Origin: media.OriginUploadedFile, Data: buf.Bytes(), Filename: "photo.png"}
}

func newTestService(store media.Store, profiles *fakeProfileRepo, avatars *fakeAvatarRepo) *AvatarService {
	return &AvatarService{
		Decoder:    media.NewDecoder(),
		Compositor: media.NewCompositor(0, 85),
		Store:      store,
		Profiles:   profiles,
		Avatars:    avatars,
		ZoomBounds: media.DefaultZoomBounds,
	}
}

func TestComposeWithExplicitRegion(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProfileRepo{}, &fakeAvatarRepo{})

	avatar, region, err := svc.Compose(context.Background(), SaveRequest{
		UserID: 7,
		Source: pngSource(t, 100, 100),
		Region: &media.CropRegion{X: 10, Y: 10, Width: 50, Height: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, avatar.Width)
	assert.Equal(t, 50, avatar.Height)
	assert.Equal(t, media.CropRegion{X: 10, Y: 10, Width: 50, Height: 50}, region)
}

func TestComposeWithInteractiveGeometry(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProfileRepo{}, &fakeAvatarRepo{})

	avatar, region, err := svc.Compose(context.Background(), SaveRequest{
		UserID:   7,
		Source:   pngSource(t, 100, 100),
		PreviewW: 100,
		PreviewH: 100,
		Geometry: media.CropGeometry{Zoom: 2.0, Aspect: 1.0},
	})
	require.NoError(t, err)
	assert.Equal(t, media.CropRegion{X: 25, Y: 25, Width: 50, Height: 50}, region)
	assert.Equal(t, 50, avatar.Width)
}

func TestComposeDecodeFailure(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProfileRepo{}, &fakeAvatarRepo{})

	_, _, err := svc.Compose(context.Background(), SaveRequest{
		UserID: 7,
		Source: media.MediaSource{Data: []byte("not an image")},
	})
	assert.ErrorIs(t, err, media.ErrDecode)
}

func TestHandoffStoresUnderUserKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProfileRepo{}, &fakeAvatarRepo{})

	avatar := &media.EditedAvatar{Data: []byte("jpegbytes"), Width: 50, Height: 50}
	handoff, err := svc.Handoff(7, "me.jpg", avatar)
	require.NoError(t, err)

	assert.Equal(t, "avatars/7/me.jpg", handoff.ObjectKey)
	assert.Equal(t, "http://localhost:8080/api/avatars/7/me.jpg", handoff.PublicURL)
	assert.Equal(t, []byte("jpegbytes"), store.objects[handoff.ObjectKey])
}

func TestHandoffSanitizesFilename(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProfileRepo{}, &fakeAvatarRepo{})

	avatar := &media.EditedAvatar{Data: []byte("x"), Width: 1, Height: 1}
	handoff, err := svc.Handoff(7, "../../evil.jpg", avatar)
	require.NoError(t, err)
	assert.Equal(t, "avatars/7/evil.jpg", handoff.ObjectKey)

	handoff, err = svc.Handoff(7, "", avatar)
	require.NoError(t, err)
	assert.Equal(t, "avatars/7/avatar.jpg", handoff.ObjectKey)
}

func TestHandoffUpsertsRepeatedSaves(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProfileRepo{}, &fakeAvatarRepo{})

	_, err := svc.Handoff(7, "me.jpg", &media.EditedAvatar{Data: []byte("first"), Width: 1, Height: 1})
	require.NoError(t, err)
	_, err = svc.Handoff(7, "me.jpg", &media.EditedAvatar{Data: []byte("second"), Width: 1, Height: 1})
	require.NoError(t, err)

	assert.Equal(t, []byte("second"), store.objects["avatars/7/me.jpg"])
}

func TestHandoffFailureLeavesProfileUntouched(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	profiles := &fakeProfileRepo{}
	svc := newTestService(store, profiles, &fakeAvatarRepo{})

	avatar := &media.EditedAvatar{Data: []byte("jpegbytes"), Width: 50, Height: 50}
	_, err := svc.Handoff(7, "me.jpg", avatar)
	assert.ErrorIs(t, err, ErrUploadFailed)

	// the profile record was never touched and the composed avatar is still
	// in hand for a retry
	assert.Equal(t, 0, profiles.setCalls)
	assert.NotEmpty(t, avatar.Data)
}

func TestUpdateRecordWritesHistoryAndProfile(t *testing.T) {
	profiles := &fakeProfileRepo{}
	avatars := &fakeAvatarRepo{}
	svc := newTestService(newFakeStore(), profiles, avatars)

	avatar := &media.EditedAvatar{Data: []byte("jpegbytes"), Width: 200, Height: 200}
	handoff := HandoffResult{ObjectKey: "avatars/7/me.jpg", PublicURL: "http://localhost:8080/api/avatars/7/me.jpg"}

	record, err := svc.UpdateRecord(7, handoff, avatar, media.OriginCameraFrame, nil)
	require.NoError(t, err)

	assert.Equal(t, uint(7), record.UserID)
	assert.Equal(t, "avatars/7/me.jpg", record.ObjectKey)
	assert.Equal(t, 200, record.Width)
	assert.Equal(t, len("jpegbytes"), record.SizeBytes)
	assert.Equal(t, string(media.OriginCameraFrame), record.Origin)
	assert.NotEmpty(t, record.SHA256)

	require.Len(t, avatars.records, 1)
	assert.Equal(t, 1, profiles.setCalls)
	assert.Equal(t, handoff.PublicURL, profiles.photoURL)
	assert.Equal(t, "", profiles.headshotURL)
}

func TestUpdateRecordHistoryFailureSkipsProfile(t *testing.T) {
	profiles := &fakeProfileRepo{}
	avatars := &fakeAvatarRepo{recordErr: errors.New("db locked")}
	svc := newTestService(newFakeStore(), profiles, avatars)

	avatar := &media.EditedAvatar{Data: []byte("x"), Width: 1, Height: 1}
	_, err := svc.UpdateRecord(7, HandoffResult{ObjectKey: "avatars/7/me.jpg"}, avatar, media.OriginUploadedFile, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, profiles.setCalls)
}

func TestDeleteRemovesObjectRecordAndRefs(t *testing.T) {
	store := newFakeStore()
	profiles := &fakeProfileRepo{photoURL: "something"}
	avatars := &fakeAvatarRepo{}
	svc := newTestService(store, profiles, avatars)

	_, err := svc.Handoff(7, "me.jpg", &media.EditedAvatar{Data: []byte("x"), Width: 1, Height: 1})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(7, "avatars/7/me.jpg"))
	assert.NotContains(t, store.objects, "avatars/7/me.jpg")
	assert.Equal(t, []string{"avatars/7/me.jpg"}, avatars.deleted)
	assert.Equal(t, 1, profiles.clearCalls)
}

func TestStoredObjectsNaturalOrder(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProfileRepo{}, &fakeAvatarRepo{})

	for _, name := range []string{"avatar-10.jpg", "avatar-2.jpg", "avatar-1.jpg"} {
		_, err := svc.Handoff(7, name, &media.EditedAvatar{Data: []byte("x"), Width: 1, Height: 1})
		require.NoError(t, err)
	}

	names, err := svc.StoredObjects(7)
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar-1.jpg", "avatar-2.jpg", "avatar-10.jpg"}, names)
}
