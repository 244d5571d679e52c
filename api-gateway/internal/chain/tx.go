package chain

import (
	"bytes"
	"encoding/json"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
)

// Vault methods callable through a transaction.
const (
	MethodRegisterBrand   = "register-brand"
	MethodVerifyBrand     = "verify-brand"
	MethodListProduct     = "list-product"
	MethodPurchaseProduct = "purchase-product"
	MethodCreateAuction   = "create-auction"
	MethodPlaceBid        = "place-bid"
	MethodEndAuction      = "end-auction"
	MethodAddReview       = "add-review"
)

// Tx is a signed call of one vault method.
type Tx struct {
	Sender vault.Principal `json:"sender"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// RegisterBrandArgs are the arguments of register-brand.
type RegisterBrandArgs struct {
	Name string `json:"name"`
}

// VerifyBrandArgs are the arguments of verify-brand.
type VerifyBrandArgs struct {
	Owner vault.Principal `json:"owner"`
}

// ListProductArgs are the arguments of list-product.
type ListProductArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
}

// ProductArgs address one product.
type ProductArgs struct {
	ProductID uint64 `json:"product_id"`
}

// CreateAuctionArgs are the arguments of create-auction.
type CreateAuctionArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinPrice    uint64 `json:"min_price"`
	Duration    uint64 `json:"duration"`
}

// PlaceBidArgs are the arguments of place-bid.
type PlaceBidArgs struct {
	AuctionID uint64 `json:"auction_id"`
	Amount    uint64 `json:"amount"`
}

// AuctionArgs address one auction.
type AuctionArgs struct {
	AuctionID uint64 `json:"auction_id"`
}

// AddReviewArgs are the arguments of add-review.
type AddReviewArgs struct {
	ProductID uint64 `json:"product_id"`
	Rating    uint64 `json:"rating"`
	Comment   string `json:"comment"`
}

// RegisterBrand builds a register-brand call.
func RegisterBrand(sender vault.Principal, name string) Tx {
	return newTx(sender, MethodRegisterBrand, RegisterBrandArgs{Name: name})
}

// VerifyBrand builds a verify-brand call.
func VerifyBrand(sender, owner vault.Principal) Tx {
	return newTx(sender, MethodVerifyBrand, VerifyBrandArgs{Owner: owner})
}

// ListProduct builds a list-product call.
func ListProduct(sender vault.Principal, name, description string, price uint64) Tx {
	return newTx(sender, MethodListProduct, ListProductArgs{Name: name, Description: description, Price: price})
}

// PurchaseProduct builds a purchase-product call.
func PurchaseProduct(sender vault.Principal, productID uint64) Tx {
	return newTx(sender, MethodPurchaseProduct, ProductArgs{ProductID: productID})
}

// CreateAuction builds a create-auction call.
func CreateAuction(sender vault.Principal, name, description string, minPrice, duration uint64) Tx {
	return newTx(sender, MethodCreateAuction, CreateAuctionArgs{
		Name:        name,
		Description: description,
		MinPrice:    minPrice,
		Duration:    duration,
	})
}

// PlaceBid builds a place-bid call.
func PlaceBid(sender vault.Principal, auctionID, amount uint64) Tx {
	return newTx(sender, MethodPlaceBid, PlaceBidArgs{AuctionID: auctionID, Amount: amount})
}

// EndAuction builds an end-auction call.
func EndAuction(sender vault.Principal, auctionID uint64) Tx {
	return newTx(sender, MethodEndAuction, AuctionArgs{AuctionID: auctionID})
}

// AddReview builds an add-review call.
func AddReview(sender vault.Principal, productID, rating uint64, comment string) Tx {
	return newTx(sender, MethodAddReview, AddReviewArgs{ProductID: productID, Rating: rating, Comment: comment})
}

func newTx(sender vault.Principal, method string, args any) Tx {
	raw, err := json.Marshal(args)
	if err != nil {
		panic("chain: encode " + method + " args: " + err.Error())
	}
	return Tx{Sender: sender, Method: method, Args: raw}
}

type method func(v *vault.Vault, env *vault.Env, args json.RawMessage) (any, error)

var methods = map[string]method{
	MethodRegisterBrand: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a RegisterBrandArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.RegisterBrand(env, a.Name)
	},
	MethodVerifyBrand: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a VerifyBrandArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.VerifyBrand(env, a.Owner)
	},
	MethodListProduct: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a ListProductArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return v.ListProduct(env, a.Name, a.Description, a.Price)
	},
	MethodPurchaseProduct: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a ProductArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.PurchaseProduct(env, a.ProductID)
	},
	MethodCreateAuction: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a CreateAuctionArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return v.CreateAuction(env, a.Name, a.Description, a.MinPrice, a.Duration)
	},
	MethodPlaceBid: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a PlaceBidArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.PlaceBid(env, a.AuctionID, a.Amount)
	},
	MethodEndAuction: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a AuctionArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.EndAuction(env, a.AuctionID)
	},
	MethodAddReview: func(v *vault.Vault, env *vault.Env, raw json.RawMessage) (any, error) {
		var a AddReviewArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return true, v.AddReview(env, a.ProductID, a.Rating, a.Comment)
	},
}

func decodeArgs(raw json.RawMessage, target any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return vault.NewError(vault.CodeInvalidInput, "arguments are required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return vault.NewError(vault.CodeInvalidInput, "decode arguments: %v", err)
	}
	return nil
}

// call dispatches tx to its vault method.
func call(v *vault.Vault, env *vault.Env, tx Tx) (any, error) {
	m, ok := methods[tx.Method]
	if !ok {
		return nil, vault.NewError(vault.CodeInvalidInput, "unknown method %q", tx.Method)
	}
	return m(v, env, tx.Args)
}
