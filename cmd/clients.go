package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/logger"
	"github.com/spigell/tender-matcher/internal/tender"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage client profiles",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List client profiles",
	Run: func(_ *cobra.Command, _ []string) {
		logger, profiles := loadProfiles()
		if err := profiles.WriteTable(os.Stdout); err != nil {
			logger.Fatal("printing client profiles", zap.Error(err))
		}
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a client profile. Missing fields are asked for interactively",
	Run: func(cmd *cobra.Command, _ []string) {
		addClient(cmd)
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a client profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deleteClient(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(clientsListCmd, clientsAddCmd, clientsDeleteCmd)

	clientsAddCmd.Flags().String("name", "", "business name")
	clientsAddCmd.Flags().String("keywords", "", "comma separated services/expertise")
	clientsAddCmd.Flags().String("location", "", "preferred location, e.g. London or UK Wide")
	clientsAddCmd.Flags().Float64("value", 0, "preferred contract value in GBP, 0 for any")
	clientsAddCmd.Flags().String("cpvs", "", "comma separated preferred CPV codes")
	clientsAddCmd.Flags().String("preferences", "", "free text preferences passed to the AI analysis")

	clientsDeleteCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation")
}

func loadProfiles() (*zap.Logger, *tender.ClientProfiles) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	path := viper.GetString("clients-file")
	profiles, err := tender.LoadClientProfiles(path)
	if err != nil {
		logger.Fatal("loading client profiles", zap.Error(err), zap.String("file", path))
	}

	return logger, profiles
}

func addClient(cmd *cobra.Command) {
	logger, profiles := loadProfiles()

	name, _ := cmd.Flags().GetString("name")
	keywords, _ := cmd.Flags().GetString("keywords")
	location, _ := cmd.Flags().GetString("location")
	value, _ := cmd.Flags().GetFloat64("value")
	cpvs, _ := cmd.Flags().GetString("cpvs")
	preferences, _ := cmd.Flags().GetString("preferences")

	if strings.TrimSpace(name) == "" {
		var err error
		if name, keywords, location, value, cpvs, preferences, err = askProfile(); err != nil {
			logger.Fatal("reading client profile", zap.Error(err))
		}
	}

	profile := &tender.ClientProfile{
		ID:                     uuid.NewString(),
		BusinessName:           strings.TrimSpace(name),
		Keywords:               tender.SplitList(keywords),
		PreferredLocation:      strings.TrimSpace(location),
		PreferredContractValue: value,
		PreferredCPVs:          tender.SplitList(cpvs),
		AdditionalPreferences:  strings.TrimSpace(preferences),
	}

	if profile.BusinessName == "" {
		logger.Fatal("business name is required")
	}
	if len(profile.Keywords) == 0 {
		logger.Warn("profile has no keywords, description matching will never score")
	}

	if err := profiles.Add(profile); err != nil {
		logger.Fatal("adding client profile", zap.Error(err))
	}

	path := viper.GetString("clients-file")
	if err := profiles.ToFile(path); err != nil {
		logger.Fatal("saving client profiles", zap.Error(err), zap.String("file", path))
	}

	logger.Info("client profile added", zap.String("id", profile.ID), zap.String("business", profile.BusinessName))
}

func askProfile() (name, keywords, location string, value float64, cpvs, preferences string, err error) {
	ask := func(label string, validate promptui.ValidateFunc) (string, error) {
		p := promptui.Prompt{Label: label, Validate: validate}
		return p.Run()
	}

	required := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("value is required")
		}
		return nil
	}

	number := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || v < 0 {
			return errors.New("enter a non-negative number")
		}
		return nil
	}

	if name, err = ask("Business name", required); err != nil {
		return
	}
	if keywords, err = ask("Keywords (comma separated)", nil); err != nil {
		return
	}
	if location, err = ask("Preferred location", nil); err != nil {
		return
	}

	var rawValue string
	if rawValue, err = ask("Preferred contract value (GBP)", number); err != nil {
		return
	}
	if rawValue = strings.TrimSpace(rawValue); rawValue != "" {
		value, _ = strconv.ParseFloat(rawValue, 64)
	}

	if cpvs, err = ask("Preferred CPV codes (comma separated)", nil); err != nil {
		return
	}
	preferences, err = ask("Additional preferences", nil)
	return
}

func deleteClient(cmd *cobra.Command, id string) {
	logger, profiles := loadProfiles()

	profile := profiles.FindByID(id)
	if profile == nil {
		logger.Fatal("deleting client profile", zap.Error(fmt.Errorf("%w: %s", tender.ErrClientNotFound, id)))
	}

	if approved, _ := cmd.Flags().GetBool("auto-approve"); !approved {
		confirm := promptui.Prompt{
			Label:     fmt.Sprintf("Delete %s (%s)", profile.BusinessName, profile.ID),
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			logger.Info("exiting", zap.String("reason", "deletion not confirmed"))
			return
		}
	}

	if err := profiles.Delete(id); err != nil {
		logger.Fatal("deleting client profile", zap.Error(err))
	}

	path := viper.GetString("clients-file")
	if err := profiles.ToFile(path); err != nil {
		logger.Fatal("saving client profiles", zap.Error(err), zap.String("file", path))
	}

	logger.Info("client profile deleted", zap.String("id", id))
}
