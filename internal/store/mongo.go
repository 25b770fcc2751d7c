package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/marketplace/internal/domain/cart"
	"github.com/example/marketplace/internal/domain/category"
	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/favorites"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo document store. Prices are stored as strings so decimals survive
// the round-trip without binary floating point drift.

// ConnectMongo opens a client and pings it
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

type productDoc struct {
	ID                string            `bson:"_id"`
	Caption           string            `bson:"caption"`
	Description       string            `bson:"description"`
	CategoryIDs       []string          `bson:"category_ids"`
	Characteristics   map[string]string `bson:"characteristics"`
	BasePrice         string            `bson:"base_price"`
	ActualPrice       string            `bson:"actual_price"`
	AvailableQuantity int64             `bson:"available_quantity"`
	OrdersCount       int64             `bson:"orders_count"`
	Rate              float64           `bson:"rate"`
	CreatedAt         time.Time         `bson:"created_at"`
}

func toProductDoc(p *product.Product) productDoc {
	return productDoc{
		ID:                p.ID,
		Caption:           p.Caption,
		Description:       p.Description,
		CategoryIDs:       p.CategoryIDs,
		Characteristics:   p.Characteristics,
		BasePrice:         p.BasePrice.String(),
		ActualPrice:       p.ActualPrice.String(),
		AvailableQuantity: p.AvailableQuantity,
		OrdersCount:       p.OrdersCount,
		Rate:              p.Rate,
		CreatedAt:         p.CreatedAt,
	}
}

func (d productDoc) toProduct() (product.Product, error) {
	base, err := decimal.NewFromString(d.BasePrice)
	if err != nil {
		return product.Product{}, fmt.Errorf("bad base price for %s: %w", d.ID, err)
	}
	actual, err := decimal.NewFromString(d.ActualPrice)
	if err != nil {
		return product.Product{}, fmt.Errorf("bad actual price for %s: %w", d.ID, err)
	}
	return product.Product{
		ID:                d.ID,
		Caption:           d.Caption,
		Description:       d.Description,
		CategoryIDs:       d.CategoryIDs,
		Characteristics:   d.Characteristics,
		BasePrice:         base,
		ActualPrice:       actual,
		AvailableQuantity: d.AvailableQuantity,
		OrdersCount:       d.OrdersCount,
		Rate:              d.Rate,
		CreatedAt:         d.CreatedAt,
	}, nil
}

// MongoProducts implements product.Store on a collection
type MongoProducts struct {
	coll *mongo.Collection
}

func NewMongoProducts(db *mongo.Database) *MongoProducts {
	return &MongoProducts{coll: db.Collection("products")}
}

func (s *MongoProducts) Save(ctx context.Context, p *product.Product) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, toProductDoc(p), opts)
	return err
}

func (s *MongoProducts) FindByID(ctx context.Context, id string) (*product.Product, error) {
	var doc productDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p, err := doc.toProduct()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoProducts) FindByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) != len(ids) {
		return nil, product.ErrNotFound
	}

	byID := make(map[string]product.Product, len(docs))
	for _, doc := range docs {
		p, err := doc.toProduct()
		if err != nil {
			return nil, err
		}
		byID[p.ID] = p
	}
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

func (s *MongoProducts) List(ctx context.Context, offset, limit int) ([]product.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]product.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toProduct()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MongoProducts) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoProducts) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementAvailable reserves stock with a filtered $inc: the update
// matches only while available_quantity still covers the request, so the
// check and the decrement are one atomic document operation.
func (s *MongoProducts) DecrementAvailable(ctx context.Context, id string, qty int64) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "available_quantity": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"available_quantity": -qty}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	// Distinguish a missing product from a short reservation
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, product.ErrNotFound
	}
	return false, nil
}

func (s *MongoProducts) AdjustAvailable(ctx context.Context, id string, delta int64) error {
	return s.adjustCounter(ctx, id, "available_quantity", delta)
}

func (s *MongoProducts) AdjustOrdersCount(ctx context.Context, id string, delta int64) error {
	return s.adjustCounter(ctx, id, "orders_count", delta)
}

func (s *MongoProducts) adjustCounter(ctx context.Context, id, field string, delta int64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{field: delta}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return product.ErrNotFound
	}
	// Clamp in case a replayed decrement undershot zero
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": id, field: bson.M{"$lt": 0}},
		bson.M{"$set": bson.M{field: int64(0)}},
	)
	return err
}

func (s *MongoProducts) UpdateActualPrice(ctx context.Context, id string, price decimal.Decimal) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"actual_price": price.String()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (s *MongoProducts) UpdateRate(ctx context.Context, id string, rate float64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"rate": rate}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

// MongoCategories implements category.Store
type MongoCategories struct {
	coll *mongo.Collection
}

func NewMongoCategories(db *mongo.Database) *MongoCategories {
	return &MongoCategories{coll: db.Collection("categories")}
}

func (s *MongoCategories) Save(ctx context.Context, c *category.Category) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, bson.M{
		"_id":                 c.ID,
		"name":                c.Name,
		"parent_id":           c.ParentID,
		"subcategory_ids":     c.SubcategoryIDs,
		"required_properties": c.RequiredProperties,
		"created_at":          c.CreatedAt,
	}, opts)
	return err
}

type categoryDoc struct {
	ID                 string    `bson:"_id"`
	Name               string    `bson:"name"`
	ParentID           string    `bson:"parent_id"`
	SubcategoryIDs     []string  `bson:"subcategory_ids"`
	RequiredProperties []string  `bson:"required_properties"`
	CreatedAt          time.Time `bson:"created_at"`
}

func (d categoryDoc) toCategory() category.Category {
	return category.Category{
		ID:                 d.ID,
		Name:               d.Name,
		ParentID:           d.ParentID,
		SubcategoryIDs:     d.SubcategoryIDs,
		RequiredProperties: d.RequiredProperties,
		CreatedAt:          d.CreatedAt,
	}
}

func (s *MongoCategories) FindByID(ctx context.Context, id string) (*category.Category, error) {
	var doc categoryDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, category.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c := doc.toCategory()
	return &c, nil
}

func (s *MongoCategories) FindByIDs(ctx context.Context, ids []string) ([]category.Category, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var docs []categoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) != len(ids) {
		return nil, category.ErrNotFound
	}
	out := make([]category.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toCategory())
	}
	return out, nil
}

type discountDoc struct {
	ID                 string    `bson:"_id"`
	Kind               string    `bson:"kind"`
	Description        string    `bson:"description"`
	Percent            string    `bson:"percent"`
	TargetProductIDs   []string  `bson:"target_product_ids,omitempty"`
	TargetCategoryIDs  []string  `bson:"target_category_ids,omitempty"`
	ClosureCategoryIDs []string  `bson:"closure_category_ids,omitempty"`
	Code               string    `bson:"code,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
}

func toDiscountDoc(d *discount.Discount) discountDoc {
	return discountDoc{
		ID:                 d.ID,
		Kind:               string(d.Kind),
		Description:        d.Description,
		Percent:            d.Percent.String(),
		TargetProductIDs:   d.TargetProductIDs,
		TargetCategoryIDs:  d.TargetCategoryIDs,
		ClosureCategoryIDs: d.ClosureCategoryIDs,
		Code:               d.Code,
		CreatedAt:          d.CreatedAt,
	}
}

func (d discountDoc) toDiscount() (discount.Discount, error) {
	percent, err := decimal.NewFromString(d.Percent)
	if err != nil {
		return discount.Discount{}, fmt.Errorf("bad percent for discount %s: %w", d.ID, err)
	}
	return discount.Discount{
		ID:                 d.ID,
		Kind:               discount.Kind(d.Kind),
		Description:        d.Description,
		Percent:            percent,
		TargetProductIDs:   d.TargetProductIDs,
		TargetCategoryIDs:  d.TargetCategoryIDs,
		ClosureCategoryIDs: d.ClosureCategoryIDs,
		Code:               d.Code,
		CreatedAt:          d.CreatedAt,
	}, nil
}

// MongoDiscounts implements discount.Store
type MongoDiscounts struct {
	coll *mongo.Collection
}

func NewMongoDiscounts(db *mongo.Database) *MongoDiscounts {
	return &MongoDiscounts{coll: db.Collection("discounts")}
}

func (s *MongoDiscounts) Save(ctx context.Context, d *discount.Discount) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": d.ID}, toDiscountDoc(d), opts)
	return err
}

func (s *MongoDiscounts) FindByID(ctx context.Context, id string) (*discount.Discount, error) {
	var doc discountDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, discount.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := doc.toDiscount()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MongoDiscounts) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return discount.ErrNotFound
	}
	return nil
}

func (s *MongoDiscounts) FindPromoCode(ctx context.Context, code string) (*discount.Discount, error) {
	var doc discountDoc
	err := s.coll.FindOne(ctx, bson.M{
		"kind": string(discount.KindPromoCode),
		"code": code,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, discount.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := doc.toDiscount()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MongoDiscounts) RemoveProductFromTargets(ctx context.Context, productID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"target_product_ids": productID},
		bson.M{"$pull": bson.M{"target_product_ids": productID}},
	)
	return err
}

type orderDoc struct {
	ID              string         `bson:"_id"`
	OwnerID         string         `bson:"owner_id"`
	ShippingAddress string         `bson:"shipping_address"`
	Status          string         `bson:"status"`
	Lines           []orderLineDoc `bson:"lines"`
	CreatedAt       time.Time      `bson:"created_at"`
}

type orderLineDoc struct {
	ProductID   string `bson:"product_id"`
	Caption     string `bson:"caption"`
	Description string `bson:"description"`
	Quantity    int64  `bson:"quantity"`
	UnitPrice   string `bson:"unit_price"`
}

func toOrderDoc(o *order.Order) orderDoc {
	lines := make([]orderLineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineDoc{
			ProductID:   l.ProductID,
			Caption:     l.Caption,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.String(),
		})
	}
	return orderDoc{
		ID:              o.ID,
		OwnerID:         o.OwnerID,
		ShippingAddress: o.ShippingAddress,
		Status:          string(o.Status),
		Lines:           lines,
		CreatedAt:       o.CreatedAt,
	}
}

func (d orderDoc) toOrder() (order.Order, error) {
	lines := make([]order.RealizedLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return order.Order{}, fmt.Errorf("bad unit price in order %s: %w", d.ID, err)
		}
		lines = append(lines, order.RealizedLine{
			ProductID:   l.ProductID,
			Caption:     l.Caption,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   price,
		})
	}
	return order.Order{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		ShippingAddress: d.ShippingAddress,
		Status:          order.Status(d.Status),
		Lines:           lines,
		CreatedAt:       d.CreatedAt,
	}, nil
}

// MongoOrders implements order.Store
type MongoOrders struct {
	coll *mongo.Collection
}

func NewMongoOrders(db *mongo.Database) *MongoOrders {
	return &MongoOrders{coll: db.Collection("orders")}
}

func (s *MongoOrders) Save(ctx context.Context, o *order.Order) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": o.ID}, toOrderDoc(o), opts)
	return err
}

func (s *MongoOrders) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var doc orderDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o, err := doc.toOrder()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *MongoOrders) FindByOwner(ctx context.Context, ownerID string, page, size int) (order.Page, error) {
	filter := bson.M{"owner_id": ownerID}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return order.Page{}, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page * size)).
		SetLimit(int64(size))
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return order.Page{}, err
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return order.Page{}, err
	}

	orders := make([]order.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.toOrder()
		if err != nil {
			return order.Page{}, err
		}
		orders = append(orders, o)
	}
	return order.Page{Orders: orders, Total: total, Page: page, Size: size}, nil
}

// MongoCarts implements cart.Store
type MongoCarts struct {
	coll *mongo.Collection
}

func NewMongoCarts(db *mongo.Database) *MongoCarts {
	return &MongoCarts{coll: db.Collection("carts")}
}

type cartDoc struct {
	OwnerID string           `bson:"_id"`
	Items   map[string]int64 `bson:"items"`
}

func (s *MongoCarts) FindByOwner(ctx context.Context, ownerID string) (*cart.Cart, error) {
	var doc cartDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Items == nil {
		doc.Items = make(map[string]int64)
	}
	return &cart.Cart{OwnerID: doc.OwnerID, Items: doc.Items}, nil
}

func (s *MongoCarts) Save(ctx context.Context, c *cart.Cart) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.OwnerID}, cartDoc{OwnerID: c.OwnerID, Items: c.Items}, opts)
	return err
}

func (s *MongoCarts) Delete(ctx context.Context, ownerID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": ownerID})
	return err
}

func (s *MongoCarts) RemoveProductFromAll(ctx context.Context, productID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"items." + productID: bson.M{"$exists": true}},
		bson.M{"$unset": bson.M{"items." + productID: ""}},
	)
	return err
}

// MongoAffected implements the per-discount affected product sets
type MongoAffected struct {
	coll *mongo.Collection
}

func NewMongoAffected(db *mongo.Database) *MongoAffected {
	return &MongoAffected{coll: db.Collection("discount_affected_products")}
}

func (s *MongoAffected) Add(ctx context.Context, discountID, productID string) (bool, error) {
	opts := options.Update().SetUpsert(true)
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": discountID},
		bson.M{"$addToSet": bson.M{"product_ids": productID}},
		opts,
	)
	if err != nil {
		return false, err
	}
	// $addToSet modifies the document only when the id was absent
	return res.ModifiedCount == 1 || res.UpsertedCount == 1, nil
}

func (s *MongoAffected) List(ctx context.Context, discountID string) ([]string, error) {
	var doc struct {
		ProductIDs []string `bson:"product_ids"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": discountID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.ProductIDs, nil
}

func (s *MongoAffected) Clear(ctx context.Context, discountID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": discountID})
	return err
}

func (s *MongoAffected) RemoveProduct(ctx context.Context, productID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"product_ids": productID},
		bson.M{"$pull": bson.M{"product_ids": productID}},
	)
	return err
}

// MongoFavorites implements favorites.Store
type MongoFavorites struct {
	coll *mongo.Collection
}

func NewMongoFavorites(db *mongo.Database) *MongoFavorites {
	return &MongoFavorites{coll: db.Collection("favorites")}
}

func (s *MongoFavorites) FindByOwner(ctx context.Context, ownerID string) (*favorites.List, error) {
	var doc struct {
		OwnerID    string   `bson:"_id"`
		ProductIDs []string `bson:"product_ids"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &favorites.List{OwnerID: ownerID, ProductIDs: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.ProductIDs == nil {
		doc.ProductIDs = []string{}
	}
	return &favorites.List{OwnerID: doc.OwnerID, ProductIDs: doc.ProductIDs}, nil
}

func (s *MongoFavorites) Add(ctx context.Context, ownerID, productID string) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": ownerID},
		bson.M{"$addToSet": bson.M{"product_ids": productID}},
		opts,
	)
	return err
}

func (s *MongoFavorites) Remove(ctx context.Context, ownerID, productID string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": ownerID},
		bson.M{"$pull": bson.M{"product_ids": productID}},
	)
	return err
}

func (s *MongoFavorites) RemoveProductFromAll(ctx context.Context, productID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"product_ids": productID},
		bson.M{"$pull": bson.M{"product_ids": productID}},
	)
	return err
}

// MongoProcessed is the durable processed-envelope set. The envelope ID is
// the document ID, so Mark is an atomic insert: exactly one of any number
// of concurrent claimants wins, across processes.
type MongoProcessed struct {
	coll *mongo.Collection
}

func NewMongoProcessed(db *mongo.Database) *MongoProcessed {
	return &MongoProcessed{coll: db.Collection("processed_envelopes")}
}

func (s *MongoProcessed) Mark(ctx context.Context, envelopeID string) (bool, error) {
	_, err := s.coll.InsertOne(ctx, bson.M{"_id": envelopeID, "processed_at": time.Now()})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoProcessed) Forget(ctx context.Context, envelopeID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": envelopeID})
	return err
}
