package ispyb

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowFeed plays canned result rows back through the dbexec.Rows surface.
type rowFeed struct {
	data [][]any
	pos  int
	err  error
}

func (f *rowFeed) Next() bool {
	if f.pos < len(f.data) {
		f.pos++
		return true
	}
	return false
}

func (f *rowFeed) Scan(dest ...any) error {
	if f.pos == 0 || f.pos > len(f.data) {
		return errors.New("Scan before Next")
	}
	current := f.data[f.pos-1]
	if len(dest) != len(current) {
		return fmt.Errorf("%d scan targets for %d columns", len(dest), len(current))
	}
	for i, v := range current {
		if err := setScanDest(dest[i], v); err != nil {
			return err
		}
	}
	return nil
}

func (f *rowFeed) Err() error   { return f.err }
func (f *rowFeed) Close() error { return nil }

func setScanDest(dest any, value any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("scan target %T is not a pointer", dest)
	}
	elem := rv.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	if elem.Kind() == reflect.Ptr {
		elem.Set(reflect.New(elem.Type().Elem()))
		return setScanDest(elem.Interface(), value)
	}
	if elem.Kind() == reflect.Bool {
		// Drivers hand tinyint(1) back as int64.
		switch v := value.(type) {
		case bool:
			elem.SetBool(v)
		case int64:
			elem.SetBool(v != 0)
		default:
			return fmt.Errorf("cannot assign %T to bool", value)
		}
		return nil
	}
	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(elem.Type()) {
		elem.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(vv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %T", value, dest)
}

func TestScanDataProcessingCoalescesNullPaths(t *testing.T) {
	rows := &rowFeed{data: [][]any{
		{uint32(5), uint32(1), "/dls/i03/data/2024/cm37235-2/processed", "fast_dp.mtz"},
		{uint32(6), uint32(1), nil, nil},
	}}

	attachments, err := ScanDataProcessing(rows)
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	assert.Equal(t, "dls/i03/data/2024/cm37235-2/processed/fast_dp.mtz", attachments[0].ObjectKey())
	assert.Equal(t, "", attachments[1].FileFullPath)
	assert.Equal(t, "", attachments[1].FileName)
}

func TestScanProcessingJobs(t *testing.T) {
	rows := &rowFeed{data: [][]any{
		{uint32(10), uint32(1), "xia2 dials", int64(1)},
		{uint32(11), uint32(1), nil, nil},
	}}

	jobs, err := ScanProcessingJobs(rows)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, uint32(10), jobs[0].ProcessingJobID)
	require.NotNil(t, jobs[0].DataCollectionID)
	assert.Equal(t, uint32(1), *jobs[0].DataCollectionID)
	require.NotNil(t, jobs[0].DisplayName)
	assert.Equal(t, "xia2 dials", *jobs[0].DisplayName)
	require.NotNil(t, jobs[0].Automatic)
	assert.True(t, *jobs[0].Automatic)

	assert.Nil(t, jobs[1].DisplayName)
	assert.Nil(t, jobs[1].Automatic)
}

func TestScanAutoProcScalingStatistics(t *testing.T) {
	rows := &rowFeed{data: [][]any{
		{
			uint32(500), uint32(90), "innerShell",
			0.998, nil,
			int64(120000), int64(4500),
			49.2, 1.3,
			0.05, nil, nil,
			0.04, 99.1, 6.6,
			12.5, nil,
		},
	}}

	stats, err := ScanAutoProcScalingStatistics(rows)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, uint32(500), s.AutoProcScalingStatisticsID)
	require.NotNil(t, s.ScalingStatisticsType)
	assert.Equal(t, StatisticsTypeInnerShell, *s.ScalingStatisticsType)
	require.NotNil(t, s.CCHalf)
	assert.InDelta(t, 0.998, *s.CCHalf, 1e-9)
	assert.Nil(t, s.CCAnomalous)
	require.NotNil(t, s.NTotalObservations)
	assert.Equal(t, int64(120000), *s.NTotalObservations)
	assert.Nil(t, s.Resioversigi2)
}

func TestScanPropagatesRowError(t *testing.T) {
	rows := &rowFeed{err: errors.New("driver: bad connection")}

	jobs, err := ScanProcessingJobs(rows)
	assert.Nil(t, jobs)
	assert.EqualError(t, err, "driver: bad connection")
}
