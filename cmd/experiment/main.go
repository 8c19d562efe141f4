package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"urnlab/adapters/export"
	"urnlab/app"
	"urnlab/domain/core"
	"urnlab/domain/experiment"
	"urnlab/internal/config"

	"github.com/joho/godotenv"
)

// Terminal runner for supervised lab sessions: drives one session end to end
// on stdin/stdout and writes the export files when the participant finishes.

type runner struct {
	in  *bufio.Scanner
	out *os.File
}

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	r := &runner{in: bufio.NewScanner(os.Stdin), out: os.Stdout}
	if err := r.run(appConfig); err != nil {
		log.Fatalf("Session aborted: %v", err)
	}
}

func (r *runner) run(appConfig *config.Config) error {
	r.say("=== Bayesian Belief Updating Study ===")
	participant := r.ask("Please enter your Participant ID: ")
	pid, err := core.ParseParticipantID(participant)
	if err != nil {
		return err
	}

	stream := app.NewSystemRNG().SessionStream(pid.String(), appConfig.Experiment.Seed)
	sess, err := experiment.NewSession(pid, stream, core.Now())
	if err != nil {
		return err
	}

	r.say("")
	r.say("You are invited to participate in a research study investigating")
	r.say("how people form judgments under conditions of uncertainty.")
	r.say("Participation is voluntary and you may withdraw at any time.")
	if !r.askYesNo("Do you agree to participate? [y/n]: ") {
		if err := sess.DeclineConsent(); err != nil {
			return err
		}
		r.say("Participant declined consent. No data collected.")
		return nil
	}
	if err := sess.GiveConsent(); err != nil {
		return err
	}
	if err := sess.Advance(); err != nil {
		return err
	}

	if err := r.runTraining(sess); err != nil {
		return err
	}
	if err := sess.Advance(); err != nil {
		return err
	}

	for {
		key, ok := sess.CurrentStageKey()
		if !ok {
			break
		}
		if err := r.runStage(sess, key); err != nil {
			return err
		}
		if err := sess.Advance(); err != nil {
			return err
		}
	}

	record, err := sess.Record()
	if err != nil {
		return err
	}
	files, err := export.NewFormatter().WriteFiles(appConfig.Export.DataDir, record)
	if err != nil {
		return err
	}
	if err := sess.MarkExported(); err != nil {
		return err
	}
	if err := sess.Advance(); err != nil {
		return err
	}

	r.say("")
	r.say("Thank you! The experiment is complete. Your data has been saved:")
	for _, f := range files {
		r.say("  " + f)
	}
	return nil
}

func (r *runner) runTraining(sess *experiment.Session) error {
	r.say("")
	r.say("--- Training: which urn was the source of this sample? ---")
	for i := 1; i <= experiment.TrainingTrialCount; i++ {
		trial, err := sess.TrainingNextTrial()
		if err != nil {
			return err
		}
		r.say(fmt.Sprintf("\nTraining Trial %d of %d", i, experiment.TrainingTrialCount))
		r.say(fmt.Sprintf("Urn A: %d%% black    Urn B: %d%% black",
			int(trial.ProbabilityA()*100), int(trial.ProbabilityB()*100)))
		r.say("Sample: " + formatSample(trial.Sample))

		var choice experiment.UrnChoice
		for {
			answer := strings.ToUpper(r.ask("Your choice [A/B]: "))
			parsed, err := experiment.ParseUrnChoice(answer)
			if err == nil {
				choice = parsed
				break
			}
			r.say("Please answer A or B.")
		}
		feedback, err := sess.TrainingSubmitChoice(choice)
		if err != nil {
			return err
		}
		if feedback.Result == experiment.ResultCorrect {
			r.say("Correct!")
		} else {
			r.say(fmt.Sprintf("Incorrect. The source was Urn %s.", feedback.CorrectChoice))
		}
	}
	return nil
}

func (r *runner) runStage(sess *experiment.Session, key experiment.StageKey) error {
	snap, err := sess.StageSnapshot(key)
	if err != nil {
		return err
	}
	jar := key.JarColor()

	r.say("")
	r.say(fmt.Sprintf("--- Stage %d: the %s jar ---", key.Number(), jar))
	if snap.TrialCount == 0 {
		r.say("A jar has been randomly selected from all possible jars.")
		estimate, err := r.askFloat("Initial estimate of drawing a black ball, before any samples (0-100): ",
			experiment.EstimateMin, experiment.EstimateMax)
		if err != nil {
			return err
		}
		if err := sess.RecordInitialEstimate(estimate); err != nil {
			return err
		}
	} else {
		r.say(fmt.Sprintf("This jar has returned. Its %d earlier draws still count.", snap.TrialCount))
	}

	for {
		snap, err = sess.StageSnapshot(key)
		if err != nil {
			return err
		}
		if snap.Complete {
			break
		}
		r.ask(fmt.Sprintf("[Trial %d of %d] Press Enter to draw a ball...", snap.TrialCount+1, snap.TrialBudget))
		outcome, err := sess.Draw(jar)
		if err != nil {
			return err
		}
		r.say(fmt.Sprintf("You drew a %s ball. Running tally: %d black out of %d.",
			outcome, snap.CumulativeBlack+countBlack(outcome), snap.TrialCount+1))

		estimate, err := r.askFloat("Probability estimate (0-100): ", experiment.EstimateMin, experiment.EstimateMax)
		if err != nil {
			return err
		}
		confidence, err := r.askFloat("Confidence (0-10): ", experiment.ConfidenceMin, experiment.ConfidenceMax)
		if err != nil {
			return err
		}
		if _, err := sess.SubmitTrial(key, outcome, estimate, confidence); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) say(line string) {
	fmt.Fprintln(r.out, line)
}

func (r *runner) ask(prompt string) string {
	fmt.Fprint(r.out, prompt)
	if !r.in.Scan() {
		return ""
	}
	return strings.TrimSpace(r.in.Text())
}

func (r *runner) askYesNo(prompt string) bool {
	for {
		switch strings.ToLower(r.ask(prompt)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		r.say("Please answer y or n.")
	}
}

func (r *runner) askFloat(prompt string, min, max float64) (float64, error) {
	for attempts := 0; attempts < 10; attempts++ {
		answer := r.ask(prompt)
		v, err := strconv.ParseFloat(answer, 64)
		if err == nil && v >= min && v <= max {
			return v, nil
		}
		r.say(fmt.Sprintf("Please enter a number between %g and %g.", min, max))
	}
	return 0, errors.New("too many invalid inputs")
}

func formatSample(sample []experiment.Outcome) string {
	parts := make([]string, len(sample))
	for i, o := range sample {
		parts[i] = string(o)
	}
	return strings.Join(parts, " ")
}

func countBlack(o experiment.Outcome) int {
	if o == experiment.OutcomeBlack {
		return 1
	}
	return 0
}
