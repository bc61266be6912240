package ispyb

import "fmt"

// StatisticsType is the stored discriminant of an AutoProcScalingStatistics
// row. The string values are the literals persisted in the
// scalingStatisticsType column and are matched case-sensitively by the batch
// predicates; changing them is a storage-compatibility break.
type StatisticsType string

const (
	StatisticsTypeOverall    StatisticsType = "overall"
	StatisticsTypeInnerShell StatisticsType = "innerShell"
	StatisticsTypeOuterShell StatisticsType = "outerShell"
)

// AllStatisticsTypes lists the stored literals in declaration order.
func AllStatisticsTypes() []StatisticsType {
	return []StatisticsType{
		StatisticsTypeOverall,
		StatisticsTypeInnerShell,
		StatisticsTypeOuterShell,
	}
}

// Valid reports whether s is one of the stored literals.
func (s StatisticsType) Valid() bool {
	switch s {
	case StatisticsTypeOverall, StatisticsTypeInnerShell, StatisticsTypeOuterShell:
		return true
	}
	return false
}

func (s StatisticsType) String() string {
	return string(s)
}

// ParseStatisticsType maps a stored literal back to its StatisticsType.
func ParseStatisticsType(s string) (StatisticsType, error) {
	t := StatisticsType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown scaling statistics type %q", s)
	}
	return t, nil
}

// ScalingStatisticsKey is the composite loader key for scaling statistics:
// one scaling row id plus the requested shell variant.
type ScalingStatisticsKey struct {
	AutoProcScalingID uint32
	StatisticsType    StatisticsType
}
