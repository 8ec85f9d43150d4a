package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/api"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/auth"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/detection"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/matching"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/violation"
)

func openStore(ctx context.Context) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "file":
		return storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled, cfg.Storage.EncryptionKey)
	default:
		timeout := time.Duration(cfg.Storage.ConnectTimeout) * time.Second
		return storage.NewMongoStore(ctx, cfg.Storage.MongoURI, cfg.Storage.Database, timeout)
	}
}

func newDetector() (detection.Detector, error) {
	switch cfg.Detector.Backend {
	case "pigo":
		return detection.NewPigoDetector(cfg.Detector.CascadePath, cfg.Detector.MinFaceSize)
	default:
		d := detection.NewDlibDetector()
		if err := d.LoadModels(cfg.Detector.ModelPath); err != nil {
			return nil, fmt.Errorf("%w (run 'sentra download-models' first)", err)
		}
		return d, nil
	}
}

func newAuthService(store storage.Store, detector detection.Detector, otps auth.OTPStore) *auth.Service {
	extractor := features.NewExtractor(cfg.Features.FaceSize, cfg.Features.ContrastFactor)
	matcher := matching.NewMatcher(cfg.Matching.DecisionThreshold, cfg.Matching.MinAcceptableScore, cfg.Matching.Parallelism)
	return auth.NewService(store, detector, extractor, matcher, otps, auth.Options{
		Padding:   cfg.Detector.Padding,
		MaxPixels: cfg.Detector.MaxImagePixels,
		Quality: auth.QualityLimits{
			MinBrightness: cfg.Quality.MinBrightness,
			MaxBrightness: cfg.Quality.MaxBrightness,
			MinContrast:   cfg.Quality.MinContrast,
		},
	})
}

func violationRules() violation.Rules {
	return violation.Rules{
		HelmetRequired:      cfg.Violation.HelmetRequired,
		FineAmount:          cfg.Violation.FineAmount,
		ConfidenceThreshold: cfg.Violation.ConfidenceThreshold,
		HeadRatio:           cfg.Violation.HeadRatio,
		HelmetIoU:           cfg.Violation.HelmetIoU,
	}
}

func closeStore(store storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logging.WithError(err).Warn("Failed to close storage")
	}
}

func cmdServe(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore(store)

	detector, err := newDetector()
	if err != nil {
		return err
	}
	defer func() { _ = detector.Close() }()

	otps := otp.NewStore(otp.LogSender{}, time.Duration(cfg.OTP.TTLSeconds)*time.Second, cfg.OTP.MaxAttempts)
	svc := newAuthService(store, detector, otps)
	proc := violation.NewProcessor(store, violationRules())
	if cfg.Violation.ProcessedDir != "" {
		proc.WithAnnotator(violation.NewAnnotator(cfg.Violation.ProcessedDir))
	}

	if cfg.OTP.ExposeCode {
		logging.Warn("OTP codes are returned in API responses; do not enable this in production")
	}

	server := api.NewServer(cfg.Server, svc, proc, otps, cfg.OTP.ExposeCode)
	return server.Run(ctx)
}

func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "Only report how many records need migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore(store)

	detector, err := newDetector()
	if err != nil {
		return err
	}
	defer func() { _ = detector.Close() }()

	svc := newAuthService(store, detector, nil)

	status, err := svc.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Users with faces:   %d\n", status.TotalWithFaces)
	fmt.Printf("Old format records: %d\n", status.OldFormat)
	if *dryRun || !status.Needed() {
		if !status.Needed() {
			fmt.Println("\nNo migration needed.")
		}
		return nil
	}

	report, err := svc.Migrate(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nMigration complete:")
	fmt.Printf("  Already migrated: %d\n", report.AlreadyMigrated)
	fmt.Printf("  Migrated:         %d\n", report.Migrated)
	fmt.Printf("  Failed:           %d\n", report.Failed)
	fmt.Printf("  Total:            %d\n", report.Total)
	return nil
}

func cmdList(args []string) error {
	logging.Debug("Listing users with faces")

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore(store)

	users, err := store.ListWithFaces(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users registered.")
		return nil
	}

	fmt.Println("Registered users:")
	for _, u := range users {
		fmt.Printf("  - %-30s %-20s %-14s %s\n", u.UserID, u.Name, u.MobileNumber, u.Face.Format())
	}
	fmt.Printf("\nTotal: %d user(s)\n", len(users))
	return nil
}

func cmdViolations(args []string) error {
	fs := flag.NewFlagSet("violations", flag.ContinueOnError)
	status := fs.String("status", "", "Only show memos with this status")
	limit := fs.Int("limit", 20, "Maximum memos to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore(store)

	memos, err := store.ListViolations(ctx, *status, *limit)
	if err != nil {
		return err
	}
	if len(memos) == 0 {
		fmt.Println("No violations recorded.")
		return nil
	}

	for _, v := range memos {
		owner := "-"
		if v.UserDetails != nil {
			owner = v.UserDetails.Name
		}
		plate := "-"
		if v.VehicleDetails != nil {
			plate = v.VehicleDetails.PlateNumber
		}
		fmt.Printf("  %s  %s  %-10s %-12s %-20s %8.2f\n",
			v.ViolationID, v.CreatedAt.Format("2006-01-02 15:04"), v.Status, plate, owner, v.FineAmount)
	}
	fmt.Printf("\nTotal: %d memo(s)\n", len(memos))
	return nil
}

func cmdConfig(args []string) error {
	logging.Debug("Showing configuration")

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Server]")
	fmt.Printf("  Address:         %s\n", cfg.Server.Addr)
	fmt.Printf("  Mode:            %s\n", cfg.Server.Mode)
	fmt.Printf("  Origins:         %v\n", cfg.Server.AllowedOrigins)
	fmt.Println()
	fmt.Println("[Detector]")
	fmt.Printf("  Backend:         %s\n", cfg.Detector.Backend)
	fmt.Printf("  Model Path:      %s\n", cfg.Detector.ModelPath)
	fmt.Printf("  Padding:         %.2f\n", cfg.Detector.Padding)
	fmt.Println()
	fmt.Println("[Matching]")
	fmt.Printf("  Decision:        %.2f\n", cfg.Matching.DecisionThreshold)
	fmt.Printf("  Min Acceptable:  %.2f\n", cfg.Matching.MinAcceptableScore)
	fmt.Printf("  Parallelism:     %d\n", cfg.Matching.Parallelism)
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Backend:         %s\n", cfg.Storage.Backend)
	if cfg.Storage.Backend == "file" {
		fmt.Printf("  Data Dir:        %s\n", cfg.Storage.DataDir)
		fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	} else {
		fmt.Printf("  Database:        %s\n", cfg.Storage.Database)
	}
	fmt.Println()
	fmt.Println("[OTP]")
	fmt.Printf("  TTL:             %d seconds\n", cfg.OTP.TTLSeconds)
	fmt.Printf("  Max Attempts:    %d\n", cfg.OTP.MaxAttempts)
	fmt.Println()
	fmt.Println("[Violation]")
	fmt.Printf("  Helmet Required: %t\n", cfg.Violation.HelmetRequired)
	fmt.Printf("  Fine:            %.2f\n", cfg.Violation.FineAmount)
	fmt.Printf("  Processed Dir:   %s\n", cfg.Violation.ProcessedDir)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  File:            %s\n", cfg.Logging.File)

	return nil
}
