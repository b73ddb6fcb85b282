package notification

import (
	"context"
	"errors"
	"fmt"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

// UserDirectory lists users that can receive pushes.
type UserDirectory interface {
	ListClientsWithToken(ctx context.Context, excludeUserID int64) ([]models.Recipient, error)
	ListRegulatorsWithToken(ctx context.Context) ([]models.Recipient, error)
}

// FollowerLookup finds clients following the vehicle a report is about.
type FollowerLookup interface {
	ListUnitFollowers(ctx context.Context, report models.Report) ([]models.Recipient, error)
}

type noFollowers struct{}

func (noFollowers) ListUnitFollowers(context.Context, models.Report) ([]models.Recipient, error) {
	return nil, nil
}

// Resolver builds the recipient set of a failure report: clients chosen by
// the audience policy, unit followers and every regulator.
type Resolver struct {
	users     UserDirectory
	followers FollowerLookup
	policy    Policy
	logger    *logging.Logger
}

func NewResolver(users UserDirectory, followers FollowerLookup, policy Policy, logger *logging.Logger) *Resolver {
	if followers == nil {
		followers = noFollowers{}
	}
	if policy == nil {
		policy = AllClients{}
	}
	return &Resolver{users: users, followers: followers, policy: policy, logger: logger}
}

// Resolve is read-only. A failing group is logged and skipped; an error is
// returned when every user directory query failed.
func (r *Resolver) Resolve(ctx context.Context, report models.Report, ref *models.Point) (*models.RecipientSet, error) {
	set := models.NewRecipientSet()
	var errs, directoryErrs []error
	queried := 0

	// Clients are only considered when the incident has a location.
	if ref != nil {
		queried++
		clients, err := r.users.ListClientsWithToken(ctx, report.EmitterUserID)
		if err != nil {
			directoryErrs = append(directoryErrs, fmt.Errorf("clients: %w", err))
		} else {
			set.Add(models.GroupClients, r.policy.Select(*ref, clients))
		}
	}

	followers, err := r.followers.ListUnitFollowers(ctx, report)
	if err != nil {
		errs = append(errs, fmt.Errorf("followers: %w", err))
	} else {
		set.Add(models.GroupFollowers, followers)
	}

	queried++
	regulators, err := r.users.ListRegulatorsWithToken(ctx)
	if err != nil {
		directoryErrs = append(directoryErrs, fmt.Errorf("regulators: %w", err))
	} else {
		set.Add(models.GroupRegulators, regulators)
	}

	errs = append(errs, directoryErrs...)
	if len(directoryErrs) == queried {
		return nil, errors.Join(errs...)
	}
	for _, e := range errs {
		r.logger.WithField("report_id", report.ID).Warnf("Audience group skipped: %v", e)
	}
	r.logger.WithFields(map[string]interface{}{
		"report_id": report.ID,
		"tokens":    set.Len(),
		"groups":    set.Groups,
	}).Debug("Audience resolved")
	return set, nil
}
