package storage

import (
	"encoding/json"
	"fmt"
	"mini-chat/contract"
	"mini-chat/domain"
)

type IdentityRepository struct {
	kv contract.KeyValue
}

func NewIdentityRepository(kv contract.KeyValue) *IdentityRepository {
	return &IdentityRepository{kv: kv}
}

func (r *IdentityRepository) Load() (domain.Identity, bool, error) {
	raw, ok, err := r.kv.Get(IdentityKey)
	if err != nil || !ok {
		return domain.Identity{}, false, err
	}
	var identity domain.Identity
	if err = json.Unmarshal(raw, &identity); err != nil {
		return domain.Identity{}, false, fmt.Errorf("decode identity: %w", err)
	}
	return identity, true, nil
}

func (r *IdentityRepository) Save(identity domain.Identity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return r.kv.Set(IdentityKey, raw)
}

// LoadOrCreate returns the stored identity, generating and persisting one on first run.
func LoadOrCreate(repository contract.IIdentityRepository) (domain.Identity, error) {
	identity, ok, err := repository.Load()
	if err != nil {
		return domain.Identity{}, err
	}
	if ok {
		return identity, nil
	}
	identity = domain.NewIdentity()
	if err = repository.Save(identity); err != nil {
		return domain.Identity{}, fmt.Errorf("save identity: %w", err)
	}
	return identity, nil
}
