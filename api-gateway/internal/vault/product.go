package vault

import "github.com/Gideonite22/clarity-trend-vault/shared/models"

// ListProduct adds a product sold by the sender, who must own a brand.
// It returns the new product id.
func (v *Vault) ListProduct(env *Env, name, description string, price uint64) (uint64, error) {
	if err := v.checkSender(env); err != nil {
		return 0, err
	}
	if err := v.requireBrand(env.Sender); err != nil {
		return 0, err
	}
	if err := validateText("product name", name, 1, MaxNameLength); err != nil {
		return 0, err
	}
	if err := validateText("product description", description, 0, MaxDescriptionLength); err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, NewError(CodeInvalidInput, "price must be greater than zero")
	}

	id := v.lastProductID + 1
	v.products[id] = Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
		Seller:      env.Sender,
		Available:   true,
	}
	v.lastProductID = id
	env.emit(models.VaultEvent{
		Kind:      models.EventProductListed,
		ProductID: id,
		Amount:    price,
		Name:      name,
	})
	return id, nil
}

// PurchaseProduct pays the seller the product price and marks it unavailable.
func (v *Vault) PurchaseProduct(env *Env, id uint64) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	product, ok := v.products[id]
	if !ok {
		return NewError(CodeNotFound, "product %d does not exist", id)
	}
	if !product.Available {
		return NewError(CodeInvalidState, "product %d is no longer available", id)
	}
	if product.Seller == env.Sender {
		return NewError(CodeInvalidInput, "seller cannot purchase their own product")
	}
	if err := v.transfer(env.Sender, product.Seller, product.Price); err != nil {
		return err
	}

	product.Available = false
	v.products[id] = product
	env.emit(models.VaultEvent{
		Kind:         models.EventProductPurchased,
		Counterparty: string(product.Seller),
		ProductID:    id,
		Amount:       product.Price,
		Name:         product.Name,
	})
	return nil
}

// GetProduct returns the product with id.
func (v *Vault) GetProduct(id uint64) Option[Product] {
	if p, ok := v.products[id]; ok {
		return Some(p)
	}
	return None[Product]()
}
