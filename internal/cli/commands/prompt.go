package commands

import (
	"github.com/AlecAivazis/survey/v2"
)

// confirm asks a yes/no question on the terminal. Tests replace it.
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// askInput asks for a required value, offering def as the default. Tests replace it.
var askInput = func(message, def string) (string, error) {
	var value string
	prompt := &survey.Input{
		Message: message,
		Default: def,
	}
	if err := survey.AskOne(prompt, &value, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return value, nil
}
