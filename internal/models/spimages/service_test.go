package spimages

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/spmedia"
	"sparsh/internal/models/spusers"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type event struct {
	name    string
	payload map[string]any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, payload: payload.(map[string]any)})
}

func (r *recorder) last() event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	db    *gorm.DB
	store *spmedia.Store
	hub   *recorder
	svc   *Service
	admin *spusers.User
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&spusers.User{}, &Image{}))

	admin := &spusers.User{Username: "admin", Email: "admin@sparsh.in", PasswordHash: "x", Role: spusers.RoleAdmin}
	require.NoError(t, db.Create(admin).Error)

	store, err := spmedia.NewStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	hub := &recorder{}
	return &fixture{db: db, store: store, hub: hub, svc: NewService(db, store, hub), admin: admin}
}

func jpegUpload(t *testing.T, size int) *spmedia.Upload {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 120, 80)), nil))
	if size > buf.Len() {
		buf.Write(make([]byte, size-buf.Len()))
	}
	return &spmedia.Upload{Reader: bytes.NewReader(buf.Bytes()), Filename: "bridal.jpg", Size: int64(buf.Len())}
}

func (f *fixture) upload(t *testing.T, title, sector, template string) *Image {
	img, err := f.svc.Upload(context.Background(), UploadInput{
		Title:      title,
		Sector:     sector,
		Template:   template,
		Tags:       "silk, red ,silk,",
		UploadedBy: f.admin.ID,
		File:       jpegUpload(t, 0),
	})
	require.NoError(t, err)
	return img
}

func storedFiles(t *testing.T, store *spmedia.Store) int {
	files, err := store.List()
	require.NoError(t, err)
	return len(files)
}

func TestScenarioUploadBroadcasts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	img, err := f.svc.Upload(ctx, UploadInput{
		Title:       "Bridal Set",
		Description: "Hand **embroidered** lehenga",
		Sector:      "Bridal",
		Template:    "Portrait",
		Tags:        "bridal, red",
		UploadedBy:  f.admin.ID,
		File:        jpegUpload(t, 2<<20),
	})
	require.NoError(t, err)

	assert.True(t, img.IsActive)
	assert.Equal(t, []string{"bridal", "red"}, img.TagsList)
	assert.Equal(t, "/uploads/"+img.PublicID, img.ImageURL)
	assert.Equal(t, "jpeg", img.Metadata.Format)
	assert.Equal(t, 120, img.Metadata.Width)
	assert.Equal(t, int64(2<<20), img.Metadata.Size)
	assert.Contains(t, img.DescriptionHTML, "<strong>embroidered</strong>")
	assert.Equal(t, "Bridal Set. Hand embroidered lehenga", img.AltText)
	require.NotNil(t, img.Uploader)
	assert.Equal(t, "admin", img.Uploader.Username)
	assert.True(t, f.store.Exists(img.PublicID))

	ev := f.hub.last()
	assert.Equal(t, EventUploaded, ev.name)
	broadcasted, ok := ev.payload["image"].(*Image)
	require.True(t, ok)
	assert.Equal(t, img.ID, broadcasted.ID)
	assert.Equal(t, "Bridal Set", broadcasted.Title)

	gallery, err := f.svc.Gallery(ctx, GalleryQuery{Sector: "Bridal"})
	require.NoError(t, err)
	require.Len(t, gallery.Images, 1)
	assert.Equal(t, img.ID, gallery.Images[0].ID)
	assert.Len(t, gallery.GroupedBySector["Bridal"], 1)
}

func TestScenarioOversizedUpload(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Upload(context.Background(), UploadInput{
		Title:    "Too big",
		Sector:   "Bridal",
		Template: "Portrait",
		File:     jpegUpload(t, 15<<20),
	})
	assert.ErrorIs(t, err, spmedia.ErrTooLarge)

	var count int64
	f.db.Model(&Image{}).Count(&count)
	assert.Zero(t, count)
	assert.Zero(t, storedFiles(t, f.store))
	assert.Empty(t, f.hub.events)
}

func TestUploadValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, UploadInput{Title: "x", Sector: "Beach", Template: "Portrait", File: jpegUpload(t, 0)})
	assert.ErrorIs(t, err, sperr.ErrValidation)
	assert.Contains(t, err.Error(), "sector must be one of")

	_, err = f.svc.Upload(ctx, UploadInput{Title: "x", Sector: "Bridal", Template: "Poster", File: jpegUpload(t, 0)})
	assert.ErrorIs(t, err, sperr.ErrValidation)

	_, err = f.svc.Upload(ctx, UploadInput{Title: " ", Sector: "Bridal", Template: "Portrait", File: jpegUpload(t, 0)})
	assert.ErrorIs(t, err, sperr.ErrValidation)

	_, err = f.svc.Upload(ctx, UploadInput{Title: "x", Sector: "Bridal", Template: "Portrait"})
	assert.ErrorIs(t, err, spmedia.ErrMissingFile)

	assert.Zero(t, storedFiles(t, f.store))
}

func TestUploadInsertFailureRemovesFile(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Migrator().DropTable(&Image{}))

	_, err := f.svc.Upload(context.Background(), UploadInput{
		Title:    "Orphan",
		Sector:   "Casual",
		Template: "Square",
		File:     jpegUpload(t, 0),
	})
	require.Error(t, err)
	assert.Equal(t, 500, sperr.Status(err))
	assert.Zero(t, storedFiles(t, f.store))
	assert.Empty(t, f.hub.events)
}

func TestInactiveImagesHiddenFromPublic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	active := f.upload(t, "Festive", "Festive", "Modern")
	hidden := f.upload(t, "Old bridal", "Bridal", "Classic")

	inactive := false
	_, err := f.svc.Update(ctx, hidden.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)

	for _, q := range []GalleryQuery{{}, {Sector: "Bridal"}, {Template: "Classic"}, {Sector: "Bridal", Template: "Classic"}} {
		gallery, err := f.svc.Gallery(ctx, q)
		require.NoError(t, err)
		for _, img := range gallery.Images {
			assert.NotEqual(t, hidden.ID, img.ID)
		}
	}

	_, err = f.svc.PublicGet(ctx, hidden.ID)
	assert.ErrorIs(t, err, sperr.ErrNotFound)
	got, err := f.svc.PublicGet(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "Festive", got.Title)

	filters, err := f.svc.Filters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Festive"}, filters.Sectors)
	assert.Equal(t, []string{"Modern"}, filters.Templates)

	// l'administration voit toujours l'image
	list, err := f.svc.AdminList(ctx, AdminQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Pagination.Total)
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	img := f.upload(t, "Evening gown", "Evening", "Portrait")
	assert.Equal(t, []string{"silk", "red"}, img.TagsList)

	title := "Evening gown, navy"
	tags := "navy, satin"
	sector := "Fashion"
	updated, err := f.svc.Update(ctx, img.ID, UpdateInput{Title: &title, Tags: &tags, Sector: &sector})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "Fashion", updated.Sector)
	assert.Equal(t, "Portrait", updated.Template)
	assert.Equal(t, []string{"navy", "satin"}, updated.TagsList)
	assert.True(t, updated.IsActive)

	reloaded, err := f.svc.Get(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"navy", "satin"}, reloaded.TagsList)

	ev := f.hub.last()
	assert.Equal(t, EventUpdated, ev.name)
	assert.Equal(t, "Image updated", ev.payload["message"])

	bad := "Runway"
	_, err = f.svc.Update(ctx, img.ID, UpdateInput{Template: &bad})
	assert.ErrorIs(t, err, sperr.ErrValidation)

	_, err = f.svc.Update(ctx, 999, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, sperr.ErrNotFound)
}

func TestDeleteRemovesFileAndRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	img := f.upload(t, "Corporate", "Corporate", "Minimalist")

	require.NoError(t, f.svc.Delete(ctx, img.ID))

	assert.False(t, f.store.Exists(img.PublicID))
	_, err := f.svc.Get(ctx, img.ID)
	assert.ErrorIs(t, err, sperr.ErrNotFound)

	list, err := f.svc.AdminList(ctx, AdminQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Images)
	gallery, err := f.svc.Gallery(ctx, GalleryQuery{})
	require.NoError(t, err)
	assert.Empty(t, gallery.Images)

	ev := f.hub.last()
	assert.Equal(t, EventDeleted, ev.name)
	assert.Equal(t, img.ID, ev.payload["imageId"])

	sweeper := spmedia.NewSweeper(f.store, f.svc.ReferencedFiles)
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	assert.ErrorIs(t, f.svc.Delete(ctx, img.ID), sperr.ErrNotFound)
}

func TestAdminListSearchAndPaging(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.upload(t, "Wedding day", "Wedding", "Collage")
	f.upload(t, "Office wear", "Corporate", "Modern")
	f.upload(t, "Wedding guests", "Wedding", "Vintage")

	list, err := f.svc.AdminList(ctx, AdminQuery{Search: "WEDDING"})
	require.NoError(t, err)
	assert.Len(t, list.Images, 2)

	list, err = f.svc.AdminList(ctx, AdminQuery{Search: "silk", Sector: "Corporate"})
	require.NoError(t, err)
	require.Len(t, list.Images, 1)
	assert.Equal(t, "Office wear", list.Images[0].Title)

	list, err = f.svc.AdminList(ctx, AdminQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list.Images, 1)
	assert.Equal(t, "Wedding day", list.Images[0].Title)
	assert.Equal(t, 2, list.Pagination.Pages)
	assert.Equal(t, int64(3), list.Pagination.Total)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"silk", "Red"}, SplitTags(" silk,Red,, red ,SILK"))
	assert.Equal(t, []string{}, SplitTags(""))
}
