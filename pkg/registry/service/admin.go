package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
)

// Capability administration. The owner address is fixed at deployment time;
// only the owner may grow or shrink the registrar and requester sets.

func (s *registryService) requireOwner(caller common.Address) error {
	if caller != s.owner {
		return apperrors.ForbiddenError(ErrNotOwner, "caller is not the owner")
	}
	return nil
}

func (s *registryService) AddRegistrar(ctx context.Context, caller, addr common.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		if err := s.roles.AddRegistrar(ctx, addr); err != nil {
			return fmt.Errorf("failed to add registrar: %w", err)
		}
		return nil
	})
}

func (s *registryService) RemoveRegistrar(ctx context.Context, caller, addr common.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		if err := s.roles.RemoveRegistrar(ctx, addr); err != nil {
			return fmt.Errorf("failed to remove registrar: %w", err)
		}
		return nil
	})
}

func (s *registryService) AddRequester(ctx context.Context, caller, addr common.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		if err := s.roles.AddRequester(ctx, addr); err != nil {
			return fmt.Errorf("failed to whitelist requester: %w", err)
		}
		return nil
	})
}

func (s *registryService) RemoveRequester(ctx context.Context, caller, addr common.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		if err := s.roles.RemoveRequester(ctx, addr); err != nil {
			return fmt.Errorf("failed to remove requester: %w", err)
		}
		return nil
	})
}
