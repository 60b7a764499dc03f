package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/ardiwinata/qms-compliance/internal/permission"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed principals and starter permission grants for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"permission_grants", "event_log", "rectifications", "audit_findings", "audit_plans", "approval_steps", "approval_chains", "documents", "document_categories", "principals"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		type seedPrincipal struct {
			Email      string
			Name       string
			Role       string
			Department string
			Superior   *string // email of superior, resolved after insert
		}

		leadEmail := "sari.lead@qms.local"
		principals := []seedPrincipal{
			{Email: "admin@qms.local", Name: "Rina Admin", Role: "admin", Department: "quality"},
			{Email: leadEmail, Name: "Sari Lead Auditor", Role: "leader", Department: "quality"},
			{Email: "budi.author@qms.local", Name: "Budi Author", Role: "user", Department: "production", Superior: &leadEmail},
			{Email: "dewi.verifier@qms.local", Name: "Dewi Verifier", Role: "leader", Department: "quality", Superior: &leadEmail},
		}

		for _, p := range principals {
			var exists int
			if err := db.Raw("SELECT 1 FROM principals WHERE email = ?", p.Email).Row().Scan(&exists); err == nil {
				fmt.Printf("principal %s already exists, skipping\n", p.Email)
				continue
			}

			if err := db.Exec(
				"INSERT INTO principals (email, name, password_hash, role, department, is_active, is_locked, created_at, updated_at) VALUES (?, ?, ?, ?, ?, true, false, now(), now())",
				p.Email, p.Name, string(hash), p.Role, p.Department,
			).Error; err != nil {
				log.Fatalf("failed to insert principal %s: %v", p.Email, err)
			}
			fmt.Println("Seeded principal:", p.Email)
		}

		for _, p := range principals {
			if p.Superior == nil {
				continue
			}
			if err := db.Exec(
				"UPDATE principals SET superior_id = (SELECT id FROM principals WHERE email = ?) WHERE email = ?",
				*p.Superior, p.Email,
			).Error; err != nil {
				log.Fatalf("failed to link superior for %s: %v", p.Email, err)
			}
		}

		var adminID, authorID int64
		if err := db.Raw("SELECT id FROM principals WHERE email = ?", "admin@qms.local").Row().Scan(&adminID); err != nil {
			log.Fatalf("failed to lookup admin id: %v", err)
		}
		if err := db.Raw("SELECT id FROM principals WHERE email = ?", "budi.author@qms.local").Row().Scan(&authorID); err != nil {
			log.Fatalf("failed to lookup author id: %v", err)
		}

		// Starter grant so the demo author can verify rectifications on
		// findings assigned to their department.
		findingType := permission.ResourceAuditFinding
		var grantExists int
		if err := db.Raw(
			"SELECT 1 FROM permission_grants WHERE user_id = ? AND permission_id = ? AND revoked_at IS NULL",
			authorID, permission.ActionVerify,
		).Row().Scan(&grantExists); err != nil {
			if err := db.Exec(
				"INSERT INTO permission_grants (id, user_id, permission_id, resource_type, reason, granted_by, granted_at) VALUES (?, ?, ?, ?, ?, ?, now())",
				uuid.NewString(), authorID, permission.ActionVerify, findingType,
				"seeded development grant for rectification verification", adminID,
			).Error; err != nil {
				log.Fatalf("failed to seed grant: %v", err)
			}
			fmt.Println("Seeded verify grant for budi.author@qms.local")
		}

		categories := []struct {
			Name string
			Desc string
		}{
			{"procedure", "quality procedures"},
			{"work_instruction", "work instructions"},
			{"form", "forms and templates"},
			{"record", "quality records"},
			{"manual", "quality manuals"},
		}

		for _, c := range categories {
			var exists int
			if err := db.Raw("SELECT 1 FROM document_categories WHERE name = ?", c.Name).Row().Scan(&exists); err != nil {
				if err := db.Exec("INSERT INTO document_categories (name, description, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())", c.Name, c.Desc).Error; err != nil {
					log.Fatalf("failed to insert document category %s: %v", c.Name, err)
				}
				fmt.Printf("Seeded document category: %s\n", c.Name)
			}
		}

		fmt.Println("Seeding complete; all accounts use password:", password)
	},
}
