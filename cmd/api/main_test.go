package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, engineMetrics := setupMetrics()
	if handler == nil || engineMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	engineMetrics.ObserveTransition("confirm", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clinicops_appointments_transitions_total") {
		t.Fatalf("expected transition counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupInlineDelivererSkipsDurableOutbox(t *testing.T) {
	logger := logging.New("error")
	handler := notify.NewOutboxHandler(notify.NewChannelDispatcher(notify.NewStubEmailSender(logger), logger), logger)
	if w := setupInlineDeliverer(context.Background(), &appconfig.Config{}, nil, handler, logger); w != nil {
		t.Fatalf("expected no inline deliverer without a memory outbox")
	}
}

func TestSetupInlineDelivererDrainsMemoryOutbox(t *testing.T) {
	logger := logging.New("error")
	outbox := events.NewMemoryOutbox()
	email := notify.NewStubEmailSender(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := outbox.Publish(ctx, "lead-1", events.TypeNotificationRequested, events.NotificationRequestedV1{
		SubjectID: "lead-1",
		Channel:   "email",
		Recipient: "ana@example.com",
		Message:   "Your appointment is confirmed",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	stores := bootstrap.BuildStores(nil, nil, logger)
	stores.Outbox = outbox
	engine := bootstrap.BuildEngine(&appconfig.Config{}, stores, nil, logger)
	handler := bootstrap.BuildDeliveryHandler(&appconfig.Config{}, engine, email, logger)

	w := setupInlineDeliverer(ctx, &appconfig.Config{OutboxPollInterval: 10 * time.Millisecond}, outbox, handler, logger)
	if w == nil {
		t.Fatalf("expected inline deliverer for memory outbox")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(email.Sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	waitForInlineDeliverer(w, logger)

	if len(email.Sent()) != 1 {
		t.Fatalf("expected one delivered email, got %d", len(email.Sent()))
	}
}
