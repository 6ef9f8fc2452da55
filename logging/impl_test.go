package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type frameStats struct {
	Frame    int
	Inliers  int
	rejected int
}

// assertLogMatches fuzzy matches a console log line. The time is only checked by length and the
// line number only has to parse.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[4]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[4]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Debugf("frame %d", 12)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	DEBUG	logging/impl_test.go:71	frame 12`)

	logger.Warnw("outlier rejected", "id", 7)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	WARN	logging/impl_test.go:75	outlier rejected	{"id":7}`)

	// Only public fields are serialized.
	logger.Infow("frame stats", "stats", frameStats{3, 12, 4})
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:80	frame stats	{"stats":{"Frame":3,"Inliers":12}}`)

	logger.Errorw("unpaired", "key")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	ERROR	logging/impl_test.go:84	unpaired	{"key":"unpaired log key"}`)
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(WARN), true, []Appender{NewWriterAppender(buf)}}

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	assertLogMatches(t, buf, `2023-10-30T09:12:09.459Z	ERROR	logging/impl_test.go:97	kept`)

	logger.SetLevel(DEBUG)
	test.That(t, logger.Level(), test.ShouldEqual, zapcore.DebugLevel)
	logger.Debug("kept")
	assertLogMatches(t, buf, `2023-10-30T09:12:09.459Z	DEBUG	logging/impl_test.go:102	kept`)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	estimatorLogger := logger.Sublogger("vio").Sublogger("estimator")
	test.That(t, estimatorLogger.Name(), test.ShouldEqual, "vio.estimator")

	estimatorLogger.Infow("initialized", "ts", 10)
	test.That(t, logs.FilterMessage("initialized").Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].LoggerName, test.ShouldEqual, "vio.estimator")

	// Level changes on a child do not leak into the parent.
	estimatorLogger.SetLevel(ERROR)
	estimatorLogger.Info("dropped")
	logger.Info("kept")
	test.That(t, logs.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("kept").Len(), test.ShouldEqual, 1)
}

func TestLevelFromString(t *testing.T) {
	for _, level := range []Level{DEBUG, INFO, WARN, ERROR} {
		parsed, err := LevelFromString(strings.ToUpper(level.String()))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, level)
	}

	_, err := LevelFromString("verbose")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
}

func TestAsZapSharesAppenders(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	tracker := logger.Sublogger("tracker")
	tracker.SetLevel(WARN)

	sugared := tracker.AsZap().With("frame", 3)
	sugared.Infow("dropped")
	sugared.Warnw("few corners", "count", 2)

	test.That(t, logs.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
	entries := logs.FilterMessage("few corners").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "tracker")
	test.That(t, entries[0].ContextMap(), test.ShouldResemble, map[string]interface{}{"frame": int64(3), "count": int64(2)})
}
