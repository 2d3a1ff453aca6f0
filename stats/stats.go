// Copyright 2024 Coinbase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"
)

const (
	// Metrics constants
	metricClientTiming   = "deposit_tracker.client.timing"
	metricClientError    = "deposit_tracker.client.error"
	MetricBlockProcessed = "deposit_tracker.block.processed"
	MetricBlockTiming    = "deposit_tracker.block.timing"
	MetricDepositFound   = "deposit_tracker.deposit.found"
	MetricDepositCredit  = "deposit_tracker.deposit.credited"
	MetricCheckpointLag  = "deposit_tracker.checkpoint.lag"

	tagClientMethod = "client.method"
	tagErrorType    = "errortype"
	TagChain        = "chain"
	TagNetwork      = "network"
)

var baseTags []string

// InitLogger initializes and returns a zap logger and returns a function to
// sync the logs and flush the buffer.
func InitLogger(fields ...zap.Field) (*zap.Logger, func(), error) {
	log, err := zap.NewProduction(zap.Fields(fields...))
	if err != nil {
		return nil, nil, err
	}

	syncFn := func() {
		if logErr := log.Sync(); logErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to sync log %v\n", logErr)
		}
	}

	return log, syncFn, nil
}

// InitStatsd configures the statsd client. An empty address disables
// metric emission; every helper in this package accepts a nil client.
func InitStatsd(address string, serviceTags map[string]string) (*statsd.Client, error) {
	defaultTags := generateDefaultTagsMap()
	baseTags = makeTagsSlice([]string{}, mergeTagsMap(serviceTags, defaultTags))

	if address == "" {
		return nil, nil
	}
	return statsd.New(address)
}

type Timer struct {
	statsdClient *statsd.Client
	name         string
	tags         map[string]string
	startTime    time.Time
}

func NewTimer(s *statsd.Client, name string, tags ...string) *Timer {
	return &Timer{
		statsdClient: s,
		name:         name,
		tags:         getTags(tags...),
		startTime:    time.Now(),
	}
}

func (t *Timer) Emit() {
	if t.statsdClient == nil {
		return
	}
	_ = t.statsdClient.Timing(t.name, time.Since(t.startTime), makeTagsSlice(baseTags, t.tags), 1)
}

func Incr(s *statsd.Client, name string, tags ...string) {
	if s == nil {
		return
	}
	_ = s.Incr(name, makeTagsSlice(baseTags, getTags(tags...)), 1)
}

func Gauge(s *statsd.Client, name string, value float64, tags ...string) {
	if s == nil {
		return
	}
	_ = s.Gauge(name, value, makeTagsSlice(baseTags, getTags(tags...)), 1)
}

// InitClientTimer starts a timer around one node call.
func InitClientTimer(s *statsd.Client, callMethod string) *Timer {
	return NewTimer(s, metricClientTiming, tagClientMethod, callMethod)
}

func IncrementErrorCount(s *statsd.Client, callMethod string, errorType string) {
	Incr(s, metricClientError, tagClientMethod, callMethod, tagErrorType, errorType)
}

func getTags(options ...string) map[string]string {
	tags := make(map[string]string)

	if len(options)%2 == 0 {
		for i := 1; i < len(options); i += 2 {
			tags[options[i-1]] = options[i]
		}
	}

	return tags
}

func generateDefaultTagsMap() map[string]string {
	defaultTagsMap := make(map[string]string)

	defaultTagsMap["environment"] = os.Getenv("DEPLOY_ENVIRONMENT")
	defaultTagsMap["env"] = os.Getenv("DEPLOY_ENVIRONMENT")

	const nameVar = "METADATA_CONTAINER_NAME"
	containerName := os.Getenv(nameVar)
	if containerName == "" {
		return defaultTagsMap
	}
	defaultTagsMap["container_name"] = containerName
	return defaultTagsMap
}

func mergeTagsMap(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, mp := range maps {
		for k, v := range mp {
			result[k] = v
		}
	}
	return result
}

// baseTags: slice of strings formatted as "key:value"
// tagsMap: map containing other tags
// The output is a slice that contains baseTags, plus the items in tagsMap converted as "key:value" strings
func makeTagsSlice(baseTags []string, tagsMap map[string]string) []string {
	if len(tagsMap) == 0 {
		return baseTags
	}
	result := make([]string, len(baseTags), len(baseTags)+len(tagsMap))
	copy(result, baseTags)
	var sb strings.Builder
	for k, v := range tagsMap {
		sb.Grow(len(k) + len(v) + 1)
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(v)
		result = append(result, sb.String())
		sb.Reset()
	}
	return result
}
