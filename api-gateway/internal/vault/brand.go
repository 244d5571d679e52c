package vault

import "github.com/Gideonite22/clarity-trend-vault/shared/models"

// RegisterBrand creates an unverified brand owned by the sender.
// A principal owns at most one brand.
func (v *Vault) RegisterBrand(env *Env, name string) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	if err := validateText("brand name", name, 1, MaxNameLength); err != nil {
		return err
	}
	if _, ok := v.brands[env.Sender]; ok {
		return NewError(CodeAlreadyExists, "brand already registered for %s", env.Sender)
	}

	v.brands[env.Sender] = Brand{Owner: env.Sender, Name: name}
	env.emit(models.VaultEvent{Kind: models.EventBrandRegistered, Name: name})
	return nil
}

// VerifyBrand marks owner's brand verified. Only the vault owner may call it.
func (v *Vault) VerifyBrand(env *Env, owner Principal) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	if env.Sender != v.owner {
		return NewError(CodeUnauthorized, "only the vault owner can verify brands")
	}
	brand, ok := v.brands[owner]
	if !ok {
		return NewError(CodeNotFound, "no brand registered for %s", owner)
	}
	if brand.Verified {
		return NewError(CodeInvalidState, "brand of %s is already verified", owner)
	}

	brand.Verified = true
	v.brands[owner] = brand
	env.emit(models.VaultEvent{
		Kind:      models.EventBrandVerified,
		Principal: string(owner),
		Name:      brand.Name,
	})
	return nil
}

// GetBrand returns the brand owned by owner.
func (v *Vault) GetBrand(owner Principal) Option[Brand] {
	if b, ok := v.brands[owner]; ok {
		return Some(b)
	}
	return None[Brand]()
}

func (v *Vault) requireBrand(p Principal) error {
	if _, ok := v.brands[p]; !ok {
		return NewError(CodeUnauthorized, "%s has no registered brand", p)
	}
	return nil
}
