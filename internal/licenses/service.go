package licenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

const (
	reasonExpirySweep = "EXPIRY_SWEEP"
	reasonTimeSync    = "TIME_SYNC"
	reasonExtended    = "EXTENDED"
)

type planReader interface {
	GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LifecycleHook is called inside the transaction that moved the license.
// OnLicenseHardExpired fires from the expiry sweep, OnLicenseRevoked from an
// admin revoke.
type LifecycleHook interface {
	OnLicenseHardExpired(ctx context.Context, tx *gorm.DB, license *models.License) error
	OnLicenseRevoked(ctx context.Context, tx *gorm.DB, license *models.License) error
}

// Service owns the license record and every status change applied to it.
type Service interface {
	Issue(ctx context.Context, tx *gorm.DB, input IssueInput) (*models.License, error)
	AdminIssue(ctx context.Context, input AdminIssueInput, actor *outbox.ActorRef) (*models.License, error)
	Get(ctx context.Context, id uuid.UUID) (*models.License, error)
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.License, error)
	GetByKey(ctx context.Context, key string) (*models.License, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListParams) (*ListResult, error)
	AdminTransition(ctx context.Context, id uuid.UUID, action enums.LicenseAction, reason *string, actor *outbox.ActorRef) (*models.License, error)
	Extend(ctx context.Context, tx *gorm.DB, id uuid.UUID, newValidUntil time.Time) (*models.License, error)
	Reevaluate(ctx context.Context, id uuid.UUID) (*models.License, error)
	LockAndSync(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.License, error)
	ProcessExpired(ctx context.Context, now time.Time, batch int) (SweepResult, error)
	SetLifecycleHook(hook LifecycleHook)
}

type ServiceParams struct {
	Repo    Repository
	Plans   planReader
	Outbox  outboxEmitter
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.LicensingMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	plans   planReader
	outbox  outboxEmitter
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.LicensingMetrics
	hook    LifecycleHook
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("licenses repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		plans:   params.Plans,
		outbox:  params.Outbox,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) SetLifecycleHook(hook LifecycleHook) {
	s.hook = hook
}

func (s *service) Issue(ctx context.Context, tx *gorm.DB, input IssueInput) (*models.License, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ownerId is required")
	}
	if input.Plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if !input.SourceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid license source type")
	}
	status := input.Status
	if status == "" {
		status = enums.LicenseStatusActive
	}
	if status != enums.LicenseStatusActive && status != enums.LicenseStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "licenses are issued ACTIVE or PENDING")
	}
	validFrom := input.ValidFrom
	if validFrom.IsZero() {
		validFrom = s.now()
	}
	validFrom = validFrom.UTC()

	plan := input.Plan
	var validUntil *time.Time
	if plan.LicenseType != enums.LicenseTypePerpetual {
		until := validFrom.Add(time.Duration(plan.DurationDays) * day)
		validUntil = &until
	}

	repo := s.repo.WithTx(tx)
	key, err := s.uniqueKey(ctx, repo)
	if err != nil {
		return nil, err
	}
	license := &models.License{
		OwnerID:               input.OwnerID,
		ProductID:             plan.ProductID,
		PlanID:                plan.ID,
		PlanVersion:           plan.Version,
		LicenseKey:            key,
		LicenseType:           plan.LicenseType,
		Status:                status,
		ValidFrom:             validFrom,
		ValidUntil:            validUntil,
		GraceDays:             plan.GraceDays,
		MaxActivations:        plan.MaxActivations,
		MaxConcurrentSessions: plan.MaxConcurrentSessions,
		AllowOfflineDays:      plan.AllowOfflineDays,
		SessionTTLMinutes:     plan.SessionTTLMinutes,
		Entitlements:          plan.Entitlements.Clone(),
		SourceType:            input.SourceType,
		SourceRef:             input.SourceRef,
	}
	if status == enums.LicenseStatusActive {
		license.Status = evaluateTerm(s.now(), validUntil, plan.GraceDays)
	}
	if err := repo.Create(ctx, license); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create license")
	}

	occurredAt := s.now()
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLicenseIssued,
		AggregateType: enums.AggregateLicense,
		AggregateID:   license.ID,
		Actor:         input.Actor,
		Data: payloads.LicenseIssuedEvent{
			LicenseID:   license.ID,
			OwnerID:     license.OwnerID,
			ProductID:   license.ProductID,
			PlanID:      license.PlanID,
			PlanVersion: license.PlanVersion,
			LicenseType: license.LicenseType,
			Status:      license.Status,
			SourceType:  license.SourceType,
			SourceRef:   license.SourceRef,
			ValidFrom:   license.ValidFrom,
			ValidUntil:  license.ValidUntil,
		},
		OccurredAt: occurredAt,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit license issued")
	}
	if GrantsEntitlements(license.Status) {
		if err := s.emitEntitlements(ctx, tx, license, true, input.Actor, occurredAt); err != nil {
			return nil, err
		}
	}

	logCtx := s.logg.WithLicenseID(ctx, license.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"source_type": license.SourceType,
		"status":      license.Status,
		"plan_id":     license.PlanID.String(),
	})
	s.logg.Info(logCtx, "license issued")
	return license, nil
}

func (s *service) uniqueKey(ctx context.Context, repo Repository) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := GenerateKey()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate license key")
		}
		_, err = repo.FindByKey(ctx, key)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return key, nil
		}
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check license key")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique license key")
}

func (s *service) AdminIssue(ctx context.Context, input AdminIssueInput, actor *outbox.ActorRef) (*models.License, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ownerId is required")
	}
	plan, err := s.plans.GetIssuable(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	var sourceRef *string
	if actor != nil {
		ref := actor.UserID.String()
		sourceRef = &ref
	}
	var issued *models.License
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		license, err := s.Issue(ctx, tx, IssueInput{
			OwnerID:    input.OwnerID,
			Plan:       plan,
			SourceType: enums.LicenseSourceAdmin,
			SourceRef:  sourceRef,
			Status:     input.Status,
			Actor:      actor,
		})
		if err != nil {
			return err
		}
		if input.Reason != nil {
			license.StatusReason = input.Reason
			if err := s.repo.WithTx(tx).Save(ctx, license); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save license reason")
			}
		}
		issued = license
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.License, error) {
	license, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return license, nil
}

func (s *service) GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.License, error) {
	license, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if license.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeAccessDenied, "license belongs to another user")
	}
	return license, nil
}

func (s *service) GetByKey(ctx context.Context, key string) (*models.License, error) {
	license, err := s.repo.FindByKey(ctx, NormalizeKey(key))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return license, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerFilter{
		ownerID:   ownerID,
		productID: params.ProductID,
		status:    params.Status,
		limit:     pagination.LimitWithBuffer(params.Limit),
		cursor:    cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses")
	}
	page, next := pagination.Page(rows, params.Limit, func(l models.License) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	// Rows between sweeps can carry a stale status; the view shows the one in force now.
	now := s.now()
	items := make([]LicenseView, 0, len(page))
	for i := range page {
		page[i].Status = Evaluate(now, &page[i])
		items = append(items, NewLicenseView(&page[i]))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) AdminTransition(ctx context.Context, id uuid.UUID, action enums.LicenseAction, reason *string, actor *outbox.ActorRef) (*models.License, error) {
	if !action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid license action")
	}
	var result *models.License
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		license, err := s.lock(ctx, repo, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := s.applyStatus(ctx, tx, license, Evaluate(now, license), statusChange{action: reasonTimeSync}); err != nil {
			return err
		}
		next, err := Transition(now, license, action)
		if err != nil {
			return err
		}
		change := statusChange{action: string(action), reason: reason, actor: actor}
		if err := s.applyStatus(ctx, tx, license, next, change); err != nil {
			return err
		}
		license.StatusReason = reason
		if err := repo.Save(ctx, license); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save license")
		}
		if next == enums.LicenseStatusRevoked && s.hook != nil {
			if err := s.hook.OnLicenseRevoked(ctx, tx, license); err != nil {
				return err
			}
		}
		result = license
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithLicenseID(ctx, id.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"action": action, "status": result.Status})
	s.logg.Info(logCtx, "license admin transition applied")
	return result, nil
}

// Extend moves validUntil forward and re-evaluates, which returns expired licenses to ACTIVE.
func (s *service) Extend(ctx context.Context, tx *gorm.DB, id uuid.UUID, newValidUntil time.Time) (*models.License, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	license, err := s.lock(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if license.Status == enums.LicenseStatusRevoked {
		return nil, UsabilityError(license.Status)
	}
	if license.ValidUntil == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "perpetual licenses cannot be extended")
	}
	newValidUntil = newValidUntil.UTC()
	if !newValidUntil.After(*license.ValidUntil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new validUntil must be later than the current one")
	}
	previous := *license.ValidUntil
	license.ValidUntil = &newValidUntil

	now := s.now()
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLicenseExtended,
		AggregateType: enums.AggregateLicense,
		AggregateID:   license.ID,
		Data: payloads.LicenseExtendedEvent{
			LicenseID:          license.ID,
			OwnerID:            license.OwnerID,
			PreviousValidUntil: &previous,
			ValidUntil:         newValidUntil,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit license extended")
	}
	if err := s.applyStatus(ctx, tx, license, Evaluate(now, license), statusChange{action: reasonExtended}); err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, license); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save license")
	}
	return license, nil
}

func (s *service) Reevaluate(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var result *models.License
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		license, err := s.LockAndSync(ctx, tx, id)
		if err != nil {
			return err
		}
		result = license
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockAndSync locks the row and persists the time-driven status before the caller acts on it.
func (s *service) LockAndSync(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.License, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	license, err := s.lock(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.syncLocked(ctx, tx, repo, license, s.now(), reasonTimeSync); err != nil {
		return nil, err
	}
	return license, nil
}

func (s *service) syncLocked(ctx context.Context, tx *gorm.DB, repo Repository, license *models.License, now time.Time, action string) (bool, error) {
	next := Evaluate(now, license)
	if next == license.Status {
		return false, nil
	}
	if err := s.applyStatus(ctx, tx, license, next, statusChange{action: action}); err != nil {
		return false, err
	}
	if err := repo.Save(ctx, license); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save license")
	}
	return true, nil
}

// ProcessExpired re-evaluates overdue licenses one transaction per record.
func (s *service) ProcessExpired(ctx context.Context, now time.Time, batch int) (SweepResult, error) {
	var (
		result SweepResult
		errs   error
		lastID uuid.UUID
	)
	if batch <= 0 {
		batch = pagination.MaxLimit
	}
	now = now.UTC()
	for {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		rows, err := s.repo.ListExpiryCandidates(ctx, now, lastID, batch)
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiry candidates"))
		}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return result, multierr.Append(errs, err)
			}
			lastID = row.ID
			result.Scanned++
			changed, err := s.expireOne(ctx, now, row.ID)
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("license %s: %w", row.ID, err))
				continue
			}
			if changed {
				result.Changed++
			}
		}
		if len(rows) < batch {
			break
		}
	}
	s.metrics.AddExpired(result.Changed)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"changed": result.Changed,
		"failed":  result.Failed,
	})
	s.logg.Info(logCtx, "license expiry sweep complete")
	return result, errs
}

func (s *service) expireOne(ctx context.Context, now time.Time, id uuid.UUID) (bool, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		license, err := s.lock(ctx, repo, id)
		if err != nil {
			return err
		}
		changed, err = s.syncLocked(ctx, tx, repo, license, now, reasonExpirySweep)
		if err != nil {
			return err
		}
		if changed && license.Status == enums.LicenseStatusExpiredHard && s.hook != nil {
			return s.hook.OnLicenseHardExpired(ctx, tx, license)
		}
		return nil
	})
	return changed, err
}

func (s *service) lock(ctx context.Context, repo Repository, id uuid.UUID) (*models.License, error) {
	license, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return license, nil
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeLicenseNotFound, "license not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load license")
}
