// Figure - Photobooth Ticket Appliance
// Copyright 2026 Postcard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Postcard/figure-raspbian

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordTrigger(t *testing.T) {
	before := testutil.ToFloat64(TriggersTotal.WithLabelValues("printed"))
	RecordTrigger("printed")
	RecordTrigger("printed")
	if got := testutil.ToFloat64(TriggersTotal.WithLabelValues("printed")) - before; got != 2 {
		t.Errorf("printed delta = %v, want 2", got)
	}
}

func TestRecordSync(t *testing.T) {
	okBefore := testutil.ToFloat64(SyncOperations.WithLabelValues("reconcile", "success"))
	errBefore := testutil.ToFloat64(SyncOperations.WithLabelValues("reconcile", "error"))

	RecordSync("reconcile", nil)
	RecordSync("reconcile", errors.New("timeout"))

	if got := testutil.ToFloat64(SyncOperations.WithLabelValues("reconcile", "success")) - okBefore; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SyncOperations.WithLabelValues("reconcile", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordGC(t *testing.T) {
	tests := []struct {
		name      string
		reclaimed bool
		err       error
		label     string
	}{
		{"reclaimed", true, nil, "reclaimed"},
		{"nothing", false, nil, "nothing"},
		{"error", false, errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(StoreGCRuns.WithLabelValues(tt.label))
			RecordGC(tt.reclaimed, tt.err)
			if got := testutil.ToFloat64(StoreGCRuns.WithLabelValues(tt.label)) - before; got != 1 {
				t.Errorf("%s delta = %v, want 1", tt.label, got)
			}
		})
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage("capture", time.Now().Add(-100*time.Millisecond))

	h, ok := PipelineStageDuration.WithLabelValues("capture").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one observation")
	}
	if m.GetHistogram().GetSampleSum() < 0.1 {
		t.Errorf("sample sum = %v, want >= 0.1", m.GetHistogram().GetSampleSum())
	}
}
