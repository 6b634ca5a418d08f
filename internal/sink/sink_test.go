package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steaming-robot/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleRows() []types.CommandRow {
	return []types.CommandRow{
		types.HeaderRow(types.ProgramNumberOf("473"), "G4802412"),
		{Position: 1, Zone: 31, Params: types.Parameters{
			Speed: 12.5, Steam: 1, Pressure: 20,
			InputOffset:  types.Offset{X: 0, Y: -3, Z: 50},
			OutputOffset: types.Offset{X: 1, Y: 0, Z: 50},
		}},
	}
}

const sampleCSV = "473,G4802412,,,,,,,,,\n1,31,12.5,1,20,0,-3,50,1,0,50\n"

func TestEncodeCSV(t *testing.T) {
	data, err := EncodeCSV(sampleRows())
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data))

	data, err = EncodeCSV(sampleRows()[:1])
	require.NoError(t, err)
	assert.Equal(t, "473,G4802412,,,,,,,,,\n", string(data))

	numeric := []types.CommandRow{types.HeaderRow(types.ProgramNumber{Text: "473", Numeric: true}, "G4802412")}
	data, err = EncodeCSV(numeric)
	require.NoError(t, err)
	assert.Equal(t, "473,G4802412,,,,,,,,,\n", string(data), "数字程序号与字符串程序号写出相同的 CSV")
}

func TestMountedSinkWritesFile(t *testing.T) {
	root := t.TempDir()
	s := NewMountedSink(root, Target{Directory: "Aivi_Output", FileName: "orders.csv"}, discardLogger())
	assert.Equal(t, "mounted", s.Name())

	require.NoError(t, s.Push(context.Background(), sampleRows()))
	data, err := os.ReadFile(filepath.Join(root, "Aivi_Output", "orders.csv"))
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data))

	// 再次推送覆盖旧文件
	require.NoError(t, s.Push(context.Background(), sampleRows()[:1]))
	data, err = os.ReadFile(filepath.Join(root, "Aivi_Output", "orders.csv"))
	require.NoError(t, err)
	assert.Equal(t, "473,G4802412,,,,,,,,,\n", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "Aivi_Output"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "不应残留临时文件")
}

func TestFTPSinkUnreachable(t *testing.T) {
	s := NewFTPSink(FTPConfig{Host: "127.0.0.1", Port: 1, User: "user", Password: "password"},
		Target{Directory: "Aivi_Output", FileName: "orders.csv"}, discardLogger())
	assert.Equal(t, "ftp", s.Name())
	assert.Equal(t, "Aivi_Output/orders.csv", s.Target.Path())
	assert.Error(t, s.Push(context.Background(), sampleRows()))
}

func archiveMetadata() types.Metadata {
	return types.Metadata{
		SerialNumber: "G4802412",
		TriggerTime:  "2024-03-07T09:15:02.123456",
		PipelineID:   "pipe-1",
		StationInfo:  &types.StationInfo{Country: "FR", Plant: "P01", StationFullID: "FR_P01_L2_S7"},
	}
}

func TestBlobName(t *testing.T) {
	name, err := BlobName(archiveMetadata())
	require.NoError(t, err)
	assert.Equal(t, "raw/FR_P01/FR_P01_L2_S7/2024/03/07/pipe-1_robot_orders.csv", name)

	meta := archiveMetadata()
	meta.TriggerTime = "2024-12-31T23:59:59+01:00"
	name, err = BlobName(meta)
	require.NoError(t, err)
	assert.Equal(t, "raw/FR_P01/FR_P01_L2_S7/2024/12/31/pipe-1_robot_orders.csv", name)

	meta.StationInfo = nil
	_, err = BlobName(meta)
	assert.ErrorIs(t, err, ErrMissingArchiveMetadata)

	meta = archiveMetadata()
	meta.TriggerTime = "yesterday"
	_, err = BlobName(meta)
	assert.ErrorIs(t, err, ErrMissingArchiveMetadata)
}

type fakeUploader struct {
	container, name string
	data            []byte
	err             error
}

func (f *fakeUploader) UploadBuffer(_ context.Context, container, name string, data []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container, f.name, f.data = container, name, data
	return azblob.UploadBufferResponse{}, f.err
}

func TestArchiverUploadsCSV(t *testing.T) {
	up := &fakeUploader{}
	a := &Archiver{client: up, container: "stlocal", logger: discardLogger()}

	name, err := a.Archive(context.Background(), archiveMetadata(), sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "stlocal", up.container)
	assert.Equal(t, name, up.name)
	assert.Equal(t, sampleCSV, string(up.data))

	up.err = errors.New("boom")
	_, err = a.Archive(context.Background(), archiveMetadata(), sampleRows())
	assert.Error(t, err)
}
