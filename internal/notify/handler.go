package notify

import (
	"supplychain-backend/internal/models"
	"supplychain-backend/internal/validate"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscribeRequest struct {
	Endpoint       string  `json:"endpoint" validate:"required,url"`
	ExpirationTime *string `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

// POST /api/subscriptions
func SubscribeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SubscribeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sub := models.PushSubscription{
			Endpoint:       body.Endpoint,
			ExpirationTime: body.ExpirationTime,
			P256dh:         body.Keys.P256dh,
			Auth:           body.Keys.Auth,
		}

		// Browsers re-post the same subscription on refresh; keep one row
		// per endpoint.
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "expiration_time"}),
		}).Create(&sub).Error
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Subscription saved"})
	}
}
