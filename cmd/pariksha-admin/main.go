package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/async"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/hierarchy"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "seed":
		err = runSeed(os.Args[2:], log)
	case "create-admin":
		err = runCreateAdmin(os.Args[2:], log)
	case "import-users":
		err = runImportUsers(os.Args[2:], log)
	case "import-hierarchy":
		err = runImportHierarchy(os.Args[2:], log)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

func usage() {
	fmt.Printf("Usage: pariksha-admin <command> [flags]\n\n")
	fmt.Printf("Commands:\n")
	fmt.Printf("  seed               Run migrations and create the permission catalog and built-in roles\n")
	fmt.Printf("  create-admin       Create a platform administrator account\n")
	fmt.Printf("  import-users       Bulk-create accounts from a YAML roster\n")
	fmt.Printf("  import-hierarchy   Replace the region hierarchy from a YAML file\n")
}

func runSeed(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dbURL := fs.String("db-url", getEnv("PARIKSHA_POSTGRES_URL", ""), "PostgreSQL connection URL")
	fs.Parse(args)

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := directory.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	if err := directory.Seed(ctx, directory.NewPostgresStore(db)); err != nil {
		return err
	}

	log.Info("Seed complete")
	return nil
}

func runCreateAdmin(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	dbURL := fs.String("db-url", getEnv("PARIKSHA_POSTGRES_URL", ""), "PostgreSQL connection URL")
	email := fs.String("email", "", "Administrator email")
	username := fs.String("username", "", "Administrator username")
	name := fs.String("name", "", "Administrator display name")
	password := fs.String("password", getEnv("PARIKSHA_ADMIN_PASSWORD", ""), "Administrator password (or PARIKSHA_ADMIN_PASSWORD)")
	cost := fs.Int("bcrypt-cost", 12, "bcrypt cost for the password hash")
	fs.Parse(args)

	if *email == "" || *username == "" || *name == "" {
		return fmt.Errorf("email, username and name are required")
	}
	if *password == "" {
		return fmt.Errorf("password is required (set -password or PARIKSHA_ADMIN_PASSWORD)")
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	store := directory.NewPostgresStore(db)

	role, err := store.GetRoleByName(ctx, directory.RoleAdmin)
	if err != nil {
		if apperr.IsNotFound(err) {
			return fmt.Errorf("ADMIN role not found, run seed first")
		}
		return err
	}

	hash, err := auth.NewBcryptHasher(*cost).Hash(*password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &directory.User{
		ID:            uuid.New(),
		Email:         *email,
		Username:      *username,
		Name:          *name,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
		Roles:         []directory.Role{*role},
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"id": user.ID, "email": user.Email}).Info("Administrator account created")
	return nil
}

// rosterUser is one account in a roster file. Scope names are optional;
// handlers resolve display names from the hierarchy on their own.
type rosterUser struct {
	Email    string   `yaml:"email"`
	Username string   `yaml:"username"`
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`

	StateCode    string `yaml:"state_code"`
	StateName    string `yaml:"state_name"`
	DistrictCode string `yaml:"district_code"`
	DistrictName string `yaml:"district_name"`
	SchoolCode   string `yaml:"school_code"`
	SchoolName   string `yaml:"school_name"`
	ClassCode    string `yaml:"class_code"`
	ClassName    string `yaml:"class_name"`

	RollNumber  string `yaml:"roll_number"`
	ParentEmail string `yaml:"parent_email"`
}

type rosterFile struct {
	Users []rosterUser `yaml:"users"`
}

func runImportUsers(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("import-users", flag.ExitOnError)
	dbURL := fs.String("db-url", getEnv("PARIKSHA_POSTGRES_URL", ""), "PostgreSQL connection URL")
	file := fs.String("file", "", "YAML roster file")
	workers := fs.Int("workers", 4, "Concurrent imports; bcrypt hashing is CPU-bound")
	cost := fs.Int("bcrypt-cost", 12, "bcrypt cost for password hashes")
	skipExisting := fs.Bool("skip-existing", true, "Skip accounts whose email or username is already taken")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("roster file is required (-file)")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read roster: %w", err)
	}
	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return fmt.Errorf("failed to parse roster: %w", err)
	}
	if len(roster.Users) == 0 {
		return fmt.Errorf("roster contains no users")
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	store := directory.NewPostgresStore(db)

	// Resolve role names up front so a typo fails the file, not one row
	roles := make(map[string]*directory.Role)
	for _, entry := range roster.Users {
		for _, name := range entry.Roles {
			if _, ok := roles[name]; ok {
				continue
			}
			role, err := store.GetRoleByName(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to resolve role %s: %w", name, err)
			}
			roles[name] = role
		}
	}

	hasher := auth.NewBcryptHasher(*cost)
	errs := async.Batch(ctx, *workers, roster.Users, func(ctx context.Context, entry rosterUser) error {
		user, err := entry.toUser(roles)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Email, err)
		}
		hash, err := hasher.Hash(entry.Password)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Email, err)
		}
		user.PasswordHash = hash
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("%s: %w", entry.Email, err)
		}
		return nil
	})

	skipped := 0
	var failed []error
	for _, err := range errs {
		if *skipExisting && apperr.IsAlreadyExists(err) {
			skipped++
			continue
		}
		failed = append(failed, err)
	}
	for _, err := range failed {
		log.WithError(err).Error("Account import failed")
	}

	log.WithFields(logrus.Fields{
		"imported": len(roster.Users) - len(errs),
		"skipped":  skipped,
		"failed":   len(failed),
	}).Info("Roster import complete")

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d accounts failed to import", len(failed), len(roster.Users))
	}
	return nil
}

func (r rosterUser) toUser(roles map[string]*directory.Role) (*directory.User, error) {
	if r.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	user := &directory.User{
		ID:       uuid.New(),
		Email:    r.Email,
		Username: r.Username,
		Name:     r.Name,
		Active:   true,
	}
	for _, name := range r.Roles {
		role, ok := roles[name]
		if !ok {
			return nil, fmt.Errorf("unknown role %s", name)
		}
		user.Roles = append(user.Roles, *role)
	}

	user.StateCode = optional(r.StateCode)
	user.StateName = optional(r.StateName)
	user.DistrictCode = optional(r.DistrictCode)
	user.DistrictName = optional(r.DistrictName)
	user.SchoolCode = optional(r.SchoolCode)
	user.SchoolName = optional(r.SchoolName)
	user.ClassCode = optional(r.ClassCode)
	user.ClassName = optional(r.ClassName)
	user.RollNumber = optional(r.RollNumber)
	user.ParentEmail = optional(r.ParentEmail)

	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

func runImportHierarchy(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("import-hierarchy", flag.ExitOnError)
	dbURL := fs.String("db-url", getEnv("PARIKSHA_POSTGRES_URL", ""), "PostgreSQL connection URL")
	file := fs.String("file", "", "YAML region file")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("region file is required (-file)")
	}

	regions, err := hierarchy.LoadFile(*file)
	if err != nil {
		return err
	}

	// Building an index validates the file: orphaned parent codes and
	// duplicates surface here, before anything is written.
	if _, err := hierarchy.NewIndex(regions); err != nil {
		return fmt.Errorf("invalid hierarchy: %w", err)
	}

	db, err := openDB(*dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	store, err := hierarchy.NewDBStore(db)
	if err != nil {
		return err
	}
	if err := store.ReplaceAll(ctx, regions); err != nil {
		return err
	}

	log.WithField("regions", len(regions)).Info("Hierarchy imported")
	return nil
}

func openDB(url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required (set -db-url or PARIKSHA_POSTGRES_URL)")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
