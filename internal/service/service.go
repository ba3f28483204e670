// Package service implements the entitlement engines on top of storage.Storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
	"github.com/bcnelson/agent-access-manager/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Clock returns the current time. Every service reads time through one so
// tests can control expiry.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// DefaultMaxExtendDays bounds self-service extensions when no policy is configured.
const DefaultMaxExtendDays = 3650

// Assignment metrics.
var (
	assignmentOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aam_assignment_operations_total",
			Help: "Assignment rows written, by target kind and operation",
		},
		[]string{"kind", "op"},
	)

	conflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aam_assignment_conflict_retries_total",
			Help: "Upserts retried after losing a race on the active-row unique index",
		},
		[]string{"kind"},
	)
)

const (
	kindAgent = "agent"
	kindGroup = "group"

	opUpsert     = "upsert"
	opDeactivate = "deactivate"
	opExtend     = "extend"
)

// Services bundles every service wired to one store.
type Services struct {
	Users            *UserService
	Assignments      *AssignmentService
	Groups           *GroupService
	GroupAssignments *GroupAssignmentService
	Selection        *SelectionService
}

// Options configures New.
type Options struct {
	Clock         Clock
	MaxExtendDays int
}

// New wires all services to store.
func New(store storage.Storage, logger logrus.FieldLogger, opts Options) *Services {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.MaxExtendDays <= 0 {
		opts.MaxExtendDays = DefaultMaxExtendDays
	}

	users := NewUserService(store, logger, opts.Clock)
	assignments := NewAssignmentService(store, users, logger, opts.Clock)
	groups := NewGroupService(store, logger, opts.Clock)
	return &Services{
		Users:            users,
		Assignments:      assignments,
		Groups:           groups,
		GroupAssignments: NewGroupAssignmentService(store, users, groups, assignments, logger, opts.Clock, opts.MaxExtendDays),
		Selection:        NewSelectionService(store, users, logger),
	}
}

// retryOnConflict runs fn a second time when it failed on a unique index.
// A concurrent writer that created the active row first makes the retry see
// that row and patch it.
func retryOnConflict(kind string, fn func() error) error {
	err := fn()
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return err
	}
	conflictRetriesTotal.WithLabelValues(kind).Inc()
	if err = fn(); errors.Is(err, domain.ErrAlreadyExists) {
		return &domain.Error{Kind: domain.ErrConflict, Message: "concurrent " + kind + " assignment; retry the request"}
	}
	return err
}

// resolveUser looks a user up by id or by email.
func resolveUser(ctx context.Context, store storage.Storage, ref domain.UserRef) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	if ref.ID != "" {
		user, err = store.GetUser(ctx, ref.ID)
	} else {
		user, err = store.GetUserByEmail(ctx, strings.ToLower(ref.Email))
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if ref.ID != "" {
			return nil, domain.NotFoundf("user %s not found", ref.ID)
		}
		return nil, domain.NotFoundf("user with email %s not found", ref.Email)
	case err != nil:
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

// wrapf adds context to a store error. Errors that already carry a
// caller-facing message pass through unchanged.
func wrapf(err error, format string, args ...any) error {
	var de *domain.Error
	if errors.As(err, &de) || errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
