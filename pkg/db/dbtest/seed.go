package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// SeedProduct inserts an active product with the given warehouse stock.
func SeedProduct(t testing.TB, db *gorm.DB, sku string, stock int, priceCents, cogsCents int64) models.Product {
	t.Helper()
	product := models.Product{
		SKU:           sku,
		Name:          "Product " + sku,
		PriceCents:    priceCents,
		COGSCents:     cogsCents,
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedUser inserts an active, available user with the role.
func SeedUser(t testing.TB, db *gorm.DB, name string, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		Name:        name,
		Email:       name + "-" + uuid.NewString()[:8] + "@codf.test",
		Role:        role,
		IsActive:    true,
		IsAvailable: true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedAgentStock gives an agent qty on-hand units of a product.
func SeedAgentStock(t testing.TB, db *gorm.DB, agentID, productID uuid.UUID, qty int) models.AgentStock {
	t.Helper()
	stock := models.AgentStock{
		AgentID:        agentID,
		ProductID:      productID,
		Quantity:       qty,
		TotalAllocated: qty,
	}
	if err := db.Create(&stock).Error; err != nil {
		t.Fatalf("seed agent stock: %v", err)
	}
	return stock
}

// Reload reads the current row for dest by primary key.
func Reload(t testing.TB, db *gorm.DB, dest any, id uuid.UUID) {
	t.Helper()
	if err := db.First(dest, "id = ?", id).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
}
