package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/MeridianExplorer/noobaa-core/pkg/catalogmgr"
	"github.com/MeridianExplorer/noobaa-core/pkg/security"
)

// CatalogManifest is one YAML document describing a batch of catalog
// mutations to apply in a single make_changes call, grouped the way the
// Catalog Manager groups them internally: per collection, per op kind.
type CatalogManifest struct {
	APIVersion string                    `yaml:"apiVersion"`
	Kind       string                    `yaml:"kind"`
	Insert     map[string][]manifestDoc  `yaml:"insert"`
	Update     map[string][]manifestItem `yaml:"update"`
	Remove     map[string][]string       `yaml:"remove"`
}

type manifestDoc map[string]interface{}

type manifestItem struct {
	ID      string                 `yaml:"id"`
	Payload map[string]interface{} `yaml:"payload"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a YAML manifest of catalog changes via make_changes",
	Long: `Apply a batch of catalog mutations from a YAML manifest.

Example:
  # Apply a manifest in one make_changes batch
  catalogctl apply -f bucket.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().Bool("background", false, "Submit via make_changes_in_background instead of make_changes")
	_ = applyCmd.MarkFlagRequired("file")
}

// encryptAccountCredentials replaces a literal "credentials" string on an
// account document with its AES-256-GCM ciphertext, keyed off the account's
// own id so every account has a distinct, reproducible encryption key
// without a separately managed keystore.
func encryptAccountCredentials(doc catalog.Document) error {
	raw, ok := doc["credentials"].(string)
	if !ok || raw == "" {
		return nil
	}

	id := doc.ID()
	if id == "" {
		return fmt.Errorf("account manifest entry is missing \"_id\"")
	}

	cm, err := security.NewCredentialsManager(security.DeriveKeyFromSystemID(id))
	if err != nil {
		return err
	}

	ciphertext, err := cm.EncryptCredentials([]byte(raw))
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	doc["credentials"] = base64.StdEncoding.EncodeToString(ciphertext)
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	background, _ := cmd.Flags().GetBool("background")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var manifest CatalogManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if manifest.Kind != "CatalogChanges" {
		return fmt.Errorf("unsupported manifest kind: %q (expected CatalogChanges)", manifest.Kind)
	}

	changes := catalogmgr.NewChanges()
	for collection, docs := range manifest.Insert {
		for _, d := range docs {
			doc := catalog.Document(d)
			if doc.ID() == "" {
				doc["_id"] = uuid.New().String()
			}
			if collection == "accounts" {
				if err := encryptAccountCredentials(doc); err != nil {
					return fmt.Errorf("account %v: %w", doc["_id"], err)
				}
			}
			changes.Insert(collection, doc)
		}
	}
	for collection, items := range manifest.Update {
		for _, it := range items {
			changes.Update(collection, it.ID, catalog.Document(it.Payload))
		}
	}
	for collection, ids := range manifest.Remove {
		for _, id := range ids {
			changes.Remove(collection, id)
		}
	}

	mgr, cleanup, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if background {
		mgr.MakeChangesInBackground(changes)
		fmt.Println("✓ Changes queued for background coalescing")
		return nil
	}

	if err := mgr.MakeChanges(cmd.Context(), changes); err != nil {
		return fmt.Errorf("make_changes: %w", err)
	}

	fmt.Println("✓ Changes applied")
	return nil
}
