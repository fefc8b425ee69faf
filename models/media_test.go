package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FrameRate
		wantErr bool
	}{
		{name: "number", input: `23.98`, want: KnownFrameRate(23.98)},
		{name: "unknown label", input: `"Unknown"`, want: FrameRate{}},
		{name: "null", input: `null`, want: FrameRate{}},
		{name: "other label", input: `"fast"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec MediaRecord
			err := json.Unmarshal([]byte(`{"frame_rate":`+tt.input+`}`), &rec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.FrameRate)
		})
	}
}

func TestMediaRecord_NullsServeAsUnknown(t *testing.T) {
	var rec MediaRecord
	require.NoError(t, json.Unmarshal([]byte(`{"frame_rate":null,"audio_sample_rate":null}`), &rec))

	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, Unknown, fields["frame_rate"])
	assert.Equal(t, Unknown, fields["audio_sample_rate"])
}

func TestSampleRate_UnmarshalJSON(t *testing.T) {
	var s SampleRate
	require.NoError(t, json.Unmarshal([]byte(`48000`), &s))
	assert.Equal(t, SampleRate{Hz: 48000}, s)

	require.NoError(t, json.Unmarshal([]byte(`"None"`), &s))
	assert.Equal(t, SampleRate{Label: None}, s)

	assert.Error(t, json.Unmarshal([]byte(`"loud"`), &s))
}
