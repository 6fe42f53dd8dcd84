package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/evidence"
	"github.com/moolen/tripwire/internal/incident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testBundle(t *testing.T) *evidence.Bundle {
	t.Helper()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inc, err := incident.New([]anomaly.Record{{
		MetricName:    "checkout_latency_p99",
		Value:         2010.5,
		Threshold:     730.1234,
		Timestamp:     ts,
		WindowSeconds: 300,
	}}, 0, ts)
	require.NoError(t, err)
	return &evidence.Bundle{
		Incident:    inc,
		CollectedAt: ts,
		Metrics:     []evidence.MetricDetail{{Metric: "checkout_latency_p99", CurrentMean: 2050}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"md", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	bundle := testBundle(t)
	w := &Writer{Dir: dir, Format: FormatJSON}

	path, err := w.Write(bundle)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "incident_"+bundle.Incident.ID+".json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	inc := decoded["incident"].(map[string]interface{})
	assert.Equal(t, bundle.Incident.ID, inc["incident_id"])
	anomalies := inc["anomalies"].([]interface{})
	require.Len(t, anomalies, 1)
	assert.Equal(t, 730.1234, anomalies[0].(map[string]interface{})["threshold"])
}

func TestWriteYAML(t *testing.T) {
	bundle := testBundle(t)
	w := &Writer{Dir: t.TempDir(), Format: FormatYAML}

	path, err := w.Write(bundle)
	require.NoError(t, err)
	assert.Equal(t, ".yaml", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Incident struct {
			ID string `yaml:"incident_id"`
		} `yaml:"incident"`
		Metrics []struct {
			Metric      string  `yaml:"metric"`
			CurrentMean float64 `yaml:"current_mean"`
		} `yaml:"metrics"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, bundle.Incident.ID, decoded.Incident.ID)
	require.Len(t, decoded.Metrics, 1)
	assert.Equal(t, 2050.0, decoded.Metrics[0].CurrentMean)
}

func TestWriteRejectsEmptyBundle(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	_, err := w.Write(&evidence.Bundle{})
	assert.Error(t, err)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Upload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incident_abc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("incident: {}\n"), 0o644))

	client := &fakeS3{}
	u := newS3Uploader(client, "ops-artifacts", "/rca/reports/")

	dest, err := u.Upload(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "s3://ops-artifacts/rca/reports/incident_abc.yaml", dest)
	assert.Equal(t, "ops-artifacts", aws.ToString(client.input.Bucket))
	assert.Equal(t, "rca/reports/incident_abc.yaml", aws.ToString(client.input.Key))
	assert.Equal(t, "application/yaml", aws.ToString(client.input.ContentType))
	assert.Equal(t, "incident: {}\n", string(client.body))
}

func TestS3UploadWithoutPrefix(t *testing.T) {
	u := newS3Uploader(&fakeS3{}, "b", "")
	assert.Equal(t, "incident_abc.json", u.Key("/tmp/x/incident_abc.json"))
}

func TestS3UploadErrors(t *testing.T) {
	u := newS3Uploader(&fakeS3{err: errors.New("access denied")}, "b", "")

	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "incident_abc.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err = u.Upload(context.Background(), path)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestNopUploader(t *testing.T) {
	dest, err := NopUploader{}.Upload(context.Background(), "incident_abc.json")
	assert.NoError(t, err)
	assert.Empty(t, dest)
}
