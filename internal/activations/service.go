package activations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/licensetoken"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
)

const defaultSessionTTLMinutes = 60

type licenseService interface {
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.License, error)
	LockAndSync(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.License, error)
}

type productReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type tokenIssuer interface {
	IssueSession(now time.Time, subject licensetoken.Subject) (string, time.Time, error)
	IssueOffline(now, expiresAt time.Time, subject licensetoken.Subject) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service binds devices to licenses and runs the concurrent session layer on top.
type Service interface {
	Activate(ctx context.Context, ownerID, licenseID uuid.UUID, input ActivateInput) (*models.Activation, error)
	Deactivate(ctx context.Context, ownerID, licenseID uuid.UUID, fingerprint string) error
	ListByLicense(ctx context.Context, ownerID, licenseID uuid.UUID) ([]ActivationView, error)
	StartSession(ctx context.Context, ownerID uuid.UUID, input SessionInput) (*SessionResult, error)
	ForceStartSession(ctx context.Context, ownerID uuid.UUID, input ForceSessionInput) (*SessionResult, error)
	Heartbeat(ctx context.Context, ownerID uuid.UUID, input SessionInput) (*SessionResult, error)
	MarkStale(ctx context.Context, now time.Time) (int, error)
}

type ServiceParams struct {
	Repo     Repository
	Licenses licenseService
	Products productReader
	Tokens   tokenIssuer
	Tx       txRunner
	Logger   *logger.Logger
	Metrics  *metrics.LicensingMetrics
	Now      func() time.Time
}

type service struct {
	repo     Repository
	licenses licenseService
	products productReader
	tokens   tokenIssuer
	tx       txRunner
	logg     *logger.Logger
	metrics  *metrics.LicensingMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("activations repository required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token issuer required")
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
		repo:     params.Repo,
		licenses: params.Licenses,
		products: params.Products,
		tokens:   params.Tokens,
		tx:       params.Tx,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) Activate(ctx context.Context, ownerID, licenseID uuid.UUID, input ActivateInput) (*models.Activation, error) {
	fingerprint, err := normalizeFingerprint(input.DeviceFingerprint)
	if err != nil {
		return nil, err
	}
	if _, err := s.licenses.GetForOwner(ctx, ownerID, licenseID); err != nil {
		return nil, err
	}
	var activation *models.Activation
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		license, err := s.usableLicense(ctx, tx, licenseID)
		if err != nil {
			return err
		}
		activation, err = s.activateLocked(ctx, s.repo.WithTx(tx), license, fingerprint, input.ClientInfo, s.now())
		return err
	})
	if err != nil {
		s.metrics.IncActivation(outcomeOf(err))
		return nil, err
	}
	s.metrics.IncActivation("success")
	logCtx := s.logg.WithLicenseID(ctx, licenseID.String())
	s.logg.Info(s.logg.WithField(logCtx, "activation_id", activation.ID.String()), "device activated")
	return activation, nil
}

// activateLocked expects the license row to be locked by the caller.
func (s *service) activateLocked(ctx context.Context, repo Repository, license *models.License, fingerprint string, info ClientInfo, now time.Time) (*models.Activation, error) {
	current, err := repo.FindCurrent(ctx, license.ID, fingerprint)
	switch {
	case err == nil:
		current.Status = enums.ActivationStatusActive
		current.LastSeenAt = now
		applyClientInfo(current, info)
		if err := repo.Save(ctx, current); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh activation")
		}
		return current, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activation")
	}

	seats, err := repo.CountSeats(ctx, license.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count activations")
	}
	if seats >= int64(license.MaxActivations) {
		return nil, pkgerrors.New(pkgerrors.CodeSeatLimitExceeded, "activation limit reached").
			WithDetails(map[string]any{"maxActivations": license.MaxActivations, "activeActivations": seats})
	}
	activation := &models.Activation{
		LicenseID:         license.ID,
		DeviceFingerprint: fingerprint,
		Status:            enums.ActivationStatusActive,
		ActivatedAt:       now,
		LastSeenAt:        now,
	}
	applyClientInfo(activation, info)
	if err := repo.Create(ctx, activation); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "device is already activated")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create activation")
	}
	return activation, nil
}

func (s *service) Deactivate(ctx context.Context, ownerID, licenseID uuid.UUID, fingerprint string) error {
	fingerprint, err := normalizeFingerprint(fingerprint)
	if err != nil {
		return err
	}
	if _, err := s.licenses.GetForOwner(ctx, ownerID, licenseID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.licenses.LockAndSync(ctx, tx, licenseID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		activation, err := repo.FindCurrent(ctx, licenseID, fingerprint)
		if err != nil {
			return mapFindErr(err)
		}
		return s.deactivate(ctx, repo, activation, reasonUser, s.now())
	})
}

func (s *service) deactivate(ctx context.Context, repo Repository, activation *models.Activation, reason string, now time.Time) error {
	activation.Status = enums.ActivationStatusDeactivated
	activation.DeactivatedAt = &now
	activation.DeactivatedReason = &reason
	if err := repo.Save(ctx, activation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate activation")
	}
	logCtx := s.logg.WithLicenseID(ctx, activation.LicenseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"activation_id": activation.ID.String(), "reason": reason})
	s.logg.Info(logCtx, "device deactivated")
	return nil
}

func (s *service) ListByLicense(ctx context.Context, ownerID, licenseID uuid.UUID) ([]ActivationView, error) {
	if _, err := s.licenses.GetForOwner(ctx, ownerID, licenseID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByLicense(ctx, licenseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activations")
	}
	views := make([]ActivationView, 0, len(rows))
	for i := range rows {
		views = append(views, NewActivationView(&rows[i]))
	}
	return views, nil
}

func (s *service) StartSession(ctx context.Context, ownerID uuid.UUID, input SessionInput) (*SessionResult, error) {
	return s.startSession(ctx, ownerID, input, nil)
}

// ForceStartSession frees the listed devices of the same license before starting.
func (s *service) ForceStartSession(ctx context.Context, ownerID uuid.UUID, input ForceSessionInput) (*SessionResult, error) {
	if len(input.DeactivateActivationIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deactivateActivationIds is required")
	}
	return s.startSession(ctx, ownerID, input.SessionInput, input.DeactivateActivationIDs)
}

func (s *service) startSession(ctx context.Context, ownerID uuid.UUID, input SessionInput, evict []uuid.UUID) (*SessionResult, error) {
	fingerprint, err := normalizeFingerprint(input.DeviceFingerprint)
	if err != nil {
		return nil, err
	}
	product, err := s.productFor(ctx, ownerID, input.LicenseID)
	if err != nil {
		return nil, err
	}
	var (
		license    *models.License
		activation *models.Activation
		offline    bool
	)
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		license, err = s.usableLicense(ctx, tx, input.LicenseID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		if len(evict) > 0 {
			if err := s.evict(ctx, repo, license.ID, evict, now); err != nil {
				return err
			}
		}
		activation, err = s.activateLocked(ctx, repo, license, fingerprint, input.ClientInfo, now)
		if err != nil {
			return err
		}
		if err := s.checkSessionCap(ctx, repo, license, activation.ID, now); err != nil {
			return err
		}
		offline = s.renewOffline(activation, license, now)
		if offline {
			if err := repo.Save(ctx, activation); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save offline expiry")
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.IncActivation(outcomeOf(err))
		return nil, err
	}
	s.metrics.IncActivation("session")
	return s.buildResult(now, product, license, activation, offline)
}

func (s *service) Heartbeat(ctx context.Context, ownerID uuid.UUID, input SessionInput) (*SessionResult, error) {
	fingerprint, err := normalizeFingerprint(input.DeviceFingerprint)
	if err != nil {
		return nil, err
	}
	product, err := s.productFor(ctx, ownerID, input.LicenseID)
	if err != nil {
		return nil, err
	}
	var (
		license    *models.License
		activation *models.Activation
		offline    bool
	)
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		license, err = s.usableLicense(ctx, tx, input.LicenseID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		activation, err = repo.FindLatest(ctx, license.ID, fingerprint)
		if err != nil {
			return mapFindErr(err)
		}
		if activation.Status != enums.ActivationStatusActive {
			return pkgerrors.New(pkgerrors.CodeSessionDeactivated, "device session is no longer active").
				WithDetails(map[string]any{"currentStatus": activation.Status})
		}
		// A lapsed session re-enters the concurrency check like a fresh start.
		if activation.LastSeenAt.Before(now.Add(-sessionTTL(license))) {
			if err := s.checkSessionCap(ctx, repo, license, activation.ID, now); err != nil {
				return err
			}
		}
		activation.LastSeenAt = now
		applyClientInfo(activation, input.ClientInfo)
		offline = s.renewOffline(activation, license, now)
		if err := repo.Save(ctx, activation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh activation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.buildResult(now, product, license, activation, offline)
}

// MarkStale flips long-unseen devices to STALE. STALE devices keep their seat.
func (s *service) MarkStale(ctx context.Context, now time.Time) (int, error) {
	allowances, err := s.repo.OfflineAllowances(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offline allowances")
	}
	var (
		total int64
		errs  error
	)
	for _, days := range allowances {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		window := days
		if window < minStaleDays {
			window = minStaleDays
		}
		cutoff := now.UTC().Add(-time.Duration(window) * 24 * time.Hour)
		n, err := s.repo.MarkStale(ctx, days, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("allowance %d: %w", days, err))
			continue
		}
		total += n
	}
	s.metrics.AddStale(int(total))
	logCtx := s.logg.WithFields(ctx, map[string]any{"stale": total, "allowances": len(allowances)})
	s.logg.Info(logCtx, "stale activation sweep complete")
	return int(total), errs
}

func (s *service) productFor(ctx context.Context, ownerID, licenseID uuid.UUID) (*models.Product, error) {
	license, err := s.licenses.GetForOwner(ctx, ownerID, licenseID)
	if err != nil {
		return nil, err
	}
	return s.products.Get(ctx, license.ProductID)
}

func (s *service) usableLicense(ctx context.Context, tx *gorm.DB, licenseID uuid.UUID) (*models.License, error) {
	license, err := s.licenses.LockAndSync(ctx, tx, licenseID)
	if err != nil {
		return nil, err
	}
	if err := licenses.UsabilityError(license.Status); err != nil {
		return nil, err
	}
	return license, nil
}

func (s *service) evict(ctx context.Context, repo Repository, licenseID uuid.UUID, ids []uuid.UUID, now time.Time) error {
	rows, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activations")
	}
	found := make(map[uuid.UUID]*models.Activation, len(rows))
	for i := range rows {
		if rows[i].LicenseID == licenseID {
			found[rows[i].ID] = &rows[i]
		}
	}
	var foreign []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			foreign = append(foreign, id)
		}
	}
	if len(foreign) > 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidActivationOwnership, "activations do not belong to this license").
			WithDetails(map[string]any{"activationIds": foreign})
	}
	for _, activation := range found {
		if activation.Status == enums.ActivationStatusDeactivated {
			continue
		}
		if err := s.deactivate(ctx, repo, activation, reasonForceValidate, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) checkSessionCap(ctx context.Context, repo Repository, license *models.License, selfID uuid.UUID, now time.Time) error {
	live, err := repo.ListLiveSessions(ctx, license.ID, now.Add(-sessionTTL(license)), selfID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count live sessions")
	}
	if len(live) < license.MaxConcurrentSessions {
		return nil
	}
	sessions := make([]LiveSession, 0, len(live))
	for _, a := range live {
		sessions = append(sessions, LiveSession{
			ActivationID:      a.ID,
			DeviceDisplayName: a.DeviceDisplayName,
			ClientOS:          a.ClientOS,
			LastSeenAt:        a.LastSeenAt,
		})
	}
	return pkgerrors.New(pkgerrors.CodeSessionLimitExceeded, "concurrent session limit reached").
		WithDetails(map[string]any{"maxConcurrentSessions": license.MaxConcurrentSessions, "activeSessions": sessions})
}

// renewOffline stamps a new offline expiry on the activation when the current one is due.
func (s *service) renewOffline(activation *models.Activation, license *models.License, now time.Time) bool {
	if !licensetoken.NeedsOfflineRenewal(now, activation.OfflineTokenExpiresAt, license.AllowOfflineDays) {
		return false
	}
	expiry := licensetoken.OfflineExpiry(now, license.AllowOfflineDays, license.GraceEndsAt())
	if expiry.IsZero() {
		return false
	}
	activation.OfflineTokenExpiresAt = &expiry
	return true
}

func (s *service) buildResult(now time.Time, product *models.Product, license *models.License, activation *models.Activation, offline bool) (*SessionResult, error) {
	subject := licensetoken.Subject{
		LicenseID:    license.ID,
		ActivationID: activation.ID,
		ProductCode:  product.Code,
		Fingerprint:  activation.DeviceFingerprint,
		Entitlements: []string(license.Entitlements.Clone()),
	}
	token, expiresAt, err := s.tokens.IssueSession(now, subject)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue session token")
	}
	result := &SessionResult{
		Activation:       NewActivationView(activation),
		LicenseStatus:    license.Status,
		RenewalRequired:  license.Status == enums.LicenseStatusExpiredGrace,
		Entitlements:     subject.Entitlements,
		SessionToken:     token,
		SessionExpiresAt: expiresAt,
	}
	if offline {
		offlineToken, err := s.tokens.IssueOffline(now, *activation.OfflineTokenExpiresAt, subject)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue offline token")
		}
		result.OfflineToken = offlineToken
		result.OfflineTokenExpiresAt = activation.OfflineTokenExpiresAt
	}
	return result, nil
}

func sessionTTL(license *models.License) time.Duration {
	minutes := license.SessionTTLMinutes
	if minutes <= 0 {
		minutes = defaultSessionTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func applyClientInfo(activation *models.Activation, info ClientInfo) {
	if info.ClientVersion != nil {
		activation.ClientVersion = info.ClientVersion
	}
	if info.ClientOS != nil {
		activation.ClientOS = info.ClientOS
	}
	if info.DeviceDisplayName != nil {
		activation.DeviceDisplayName = info.DeviceDisplayName
	}
}

func normalizeFingerprint(raw string) (string, error) {
	fingerprint := strings.TrimSpace(raw)
	if fingerprint == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "deviceFingerprint is required")
	}
	return fingerprint, nil
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeActivationNotFound, "activation not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activation")
}

func outcomeOf(err error) string {
	if appErr := pkgerrors.As(err); appErr != nil {
		return strings.ToLower(string(appErr.Code()))
	}
	return "error"
}
