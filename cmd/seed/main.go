package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
)

type sample struct {
	title       string
	description string
	code        string
	price       float64
	stock       int
	category    string
	thumbnails  []string
}

var sampleProducts = []sample{
	{"Gaming Laptop RGB", "High-end gaming laptop with RGB keyboard and a dedicated RTX 4060", "LAP001", 1299.99, 5, "Technology", []string{"laptop1.jpg", "laptop2.jpg"}},
	{"Wireless Gaming Mouse", "Wireless mouse with a high precision optical sensor", "MOU001", 79.99, 15, "Accessories", []string{"mouse1.jpg"}},
	{"Premium Bluetooth Headphones", "Wireless headphones with active noise cancelling", "AUR001", 199.99, 8, "Audio", []string{"headphones1.jpg", "headphones2.jpg"}},
	{"Mechanical Keyboard RGB", "Mechanical keyboard with Cherry MX Blue switches and backlight", "TEC001", 149.99, 12, "Accessories", []string{"keyboard1.jpg"}},
	{"4K Gaming Monitor", "27 inch 4K 144Hz monitor with G-Sync", "MON001", 599.99, 3, "Technology", []string{"monitor1.jpg", "monitor2.jpg", "monitor3.jpg"}},
	{"Smartphone Pro Max", "Flagship phone with a triple camera and 256GB of storage", "CEL001", 999.99, 7, "Technology", []string{"phone1.jpg"}},
	{"Portable Speaker", "Water resistant bluetooth speaker with 20 hours of battery", "PAR001", 89.99, 20, "Audio", []string{"speaker1.jpg"}},
	{"HD Webcam", "1080p webcam with a built-in microphone", "WEB001", 59.99, 0, "Accessories", []string{"webcam1.jpg"}},
	{"10 inch Tablet", "Tablet with a full HD screen and 64GB of storage", "TAB001", 299.99, 10, "Technology", nil},
	{"Streaming Microphone", "USB condenser microphone for streaming and podcasts", "MIC001", 129.99, 6, "Audio", []string{"mic1.jpg"}},
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", "error", err)
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	if err := repository.EnsureIndexes(ctx, productRepo, cartRepo); err != nil {
		log.Fatal("failed to create indexes", "error", err)
	}

	products := catalog.NewService(productRepo, nil, log, catalog.Settings{})

	var inserted, skipped atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, s := range sampleProducts {
		s := s
		g.Go(func() error {
			price, stock, status := s.price, s.stock, true
			_, err := products.Create(gctx, domain.ProductInput{
				Title:       s.title,
				Description: s.description,
				Code:        s.code,
				Price:       &price,
				Status:      &status,
				Stock:       &stock,
				Category:    s.category,
				Thumbnails:  s.thumbnails,
			})
			switch {
			case errors.Is(err, domain.ErrDuplicateCode):
				skipped.Add(1)
				log.Info("product already present", "code", s.code)
				return nil
			case err != nil:
				return err
			}
			inserted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("seeding products failed", "error", err)
	}

	c, err := cartRepo.Create(ctx)
	if err != nil {
		log.Fatal("failed to create cart", "error", err)
	}

	log.Info("seed complete", "inserted", inserted.Load(), "skipped", skipped.Load(), "cartID", c.ID)
}
