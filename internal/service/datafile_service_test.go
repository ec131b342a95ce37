package service

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/blob"
	"docket/internal/models"
)

func TestDataFileKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "datafiles/2024/WQ-01_1700000000123.csv", DataFileKey(2024, "WQ-01", "Report.CSV", at))
	assert.Equal(t, "datafiles/2024/a_b_1700000000123.xlsx", DataFileKey(2024, "a/b", "x.xlsx", at))
	assert.Equal(t, "datafiles/2024/file_"+strconv.FormatInt(at.Unix(), 36)+"_1700000000123", DataFileKey(2024, " ", "README", at))
}

func TestDataFileService_UploadOpenDelete(t *testing.T) {
	f := newFixture(t)
	store := blob.NewMemory()
	svc := NewDataFileService(f.db, store, 1024)
	ctx := context.Background()

	body := "year,value\n2024,42\n"
	df, err := svc.Upload(ctx, f.editor.Actor(), UploadInput{
		FileName: "levels.csv", MimeType: "text/csv", DataYear: 2024, DataCode: "LV",
		Size: int64(len(body)), Body: strings.NewReader(body),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), df.FileSize)
	assert.True(t, strings.HasPrefix(df.FilePath, "datafiles/2024/LV_"))

	listed, err := svc.List(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	none, err := svc.List(ctx, 2023)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, rc, err := svc.Open(ctx, df.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, body, string(content))
	assert.Equal(t, "levels.csv", got.FileName)

	assert.True(t, models.IsCode(svc.Delete(ctx, f.inspector.Actor(), df.ID), models.CodeUnauthorized))
	require.NoError(t, svc.Delete(ctx, f.editor.Actor(), df.ID))

	_, err = store.Head(ctx, df.FilePath)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	_, _, err = svc.Open(ctx, df.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestDataFileService_UploadRejections(t *testing.T) {
	f := newFixture(t)
	store := blob.NewMemory()
	svc := NewDataFileService(f.db, store, 8)
	ctx := context.Background()

	in := func(size int64, body string) UploadInput {
		return UploadInput{FileName: "a.bin", DataYear: 2024, Size: size, Body: bytes.NewReader([]byte(body))}
	}

	_, err := svc.Upload(ctx, f.viewer.Actor(), in(1, "x"))
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	noYear := in(1, "x")
	noYear.DataYear = 0
	_, err = svc.Upload(ctx, f.editor.Actor(), noYear)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = svc.Upload(ctx, f.editor.Actor(), in(9, "123456789"))
	assert.True(t, models.IsCode(err, models.CodeValidation), "declared size over the limit")

	_, err = svc.Upload(ctx, f.editor.Actor(), in(1, "123456789"))
	assert.True(t, models.IsCode(err, models.CodeValidation), "body larger than declared")

	objs, err := store.List(ctx, "datafiles/")
	require.NoError(t, err)
	assert.Empty(t, objs, "rejected uploads leave nothing behind")
}
