// Package doctor runs preflight checks for the native audio stack and the
// configured integrations.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rubiojr/lunarvox/config"
	"github.com/rubiojr/lunarvox/internal/output"
)

type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// RunChecks performs runtime preflight checks for cfg and returns results.
func RunChecks(cfg *config.Config) []CheckResult {
	var results []CheckResult

	results = append(results, CheckResult{
		Name:   "platform",
		OK:     true,
		Detail: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	})

	switch cfg.Backend {
	case config.BackendPortAudio:
		results = append(results, checkLib("libportaudio"))
		jack := checkLib("libjack")
		if !jack.OK {
			jack.Detail = "not found (optional, PortAudio may work without it)"
			jack.OK = true
		}
		results = append(results, jack)
	case config.BackendMalgo:
		results = append(results, CheckResult{Name: "miniaudio", OK: true, Detail: "bundled"})
	case config.BackendSynthetic:
		results = append(results, CheckResult{Name: "microphone", OK: true, Detail: "synthetic tone"})
	}

	// Opus is linked for both encoding and preview decoding.
	results = append(results, checkLib("libopus"))

	results = append(results, checkDataDir(cfg.DataDir))

	if cfg.Mattermost.Enabled() {
		r := CheckResult{Name: "mattermost", OK: cfg.Mattermost.Token != "" && cfg.Mattermost.ChannelID != ""}
		if r.OK {
			r.Detail = cfg.Mattermost.URL
		} else {
			r.Detail = "token and channel_id are required"
		}
		results = append(results, r)
	}
	if cfg.Transcribe.Enabled() {
		results = append(results, CheckResult{Name: "transcription", OK: true, Detail: cfg.Transcribe.URL})
	}
	if cfg.Translate.Enabled() {
		ollama := checkCommand("ollama")
		if !ollama.OK {
			ollama.Detail = "not found (optional when ollama_host points to a remote server)"
			ollama.OK = true
		}
		results = append(results, ollama)
	}

	return results
}

// Report prints check results and returns true if all passed.
func Report(f *output.Formatter, results []CheckResult) bool {
	allOK := true
	for _, r := range results {
		f.SetupCheck(r.Name, r.OK, r.Detail)
		if !r.OK {
			allOK = false
		}
	}

	if !allOK {
		f.Warning("Some prerequisites are missing. Install them with:")
		if isDebian() {
			f.Info("sudo apt install -y libportaudio2 libportaudio-dev libopus-dev libopusfile-dev")
		} else {
			f.Info("sudo dnf install -y portaudio-devel opus-devel opusfile-devel")
		}
	}

	return allOK
}

func checkDataDir(dir string) CheckResult {
	name := "data directory"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: name, OK: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{Name: name, OK: false, Detail: "not writable: " + dir}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Name: name, OK: true, Detail: dir}
}

func checkLib(name string) CheckResult {
	out, err := exec.Command("ldconfig", "-p").Output()
	if err == nil {
		soName := name + ".so"
		for _, line := range strings.Split(string(out), "\n") {
			if strings.Contains(line, soName) {
				parts := strings.SplitN(line, "=>", 2)
				path := strings.TrimSpace(parts[len(parts)-1])
				return CheckResult{Name: name, OK: true, Detail: path}
			}
		}
	}

	// PipeWire ships its JACK shim outside the linker path.
	if name == "libjack" {
		for _, p := range []string{
			"/usr/lib64/pipewire-0.3/jack/libjack.so",
			"/usr/lib/aarch64-linux-gnu/pipewire-0.3/jack/libjack.so",
			"/usr/lib/x86_64-linux-gnu/pipewire-0.3/jack/libjack.so",
		} {
			if _, err := os.Stat(p); err == nil {
				return CheckResult{Name: name, OK: true, Detail: p + " (pipewire)"}
			}
		}
	}

	for _, dir := range filepath.SplitList(os.Getenv("LD_LIBRARY_PATH")) {
		if dir == "" {
			continue
		}
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), name+".so") {
				return CheckResult{Name: name, OK: true, Detail: filepath.Join(dir, e.Name())}
			}
		}
	}

	return CheckResult{Name: name, OK: false, Detail: "not found"}
}

func checkCommand(name string) CheckResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return CheckResult{Name: name, OK: false, Detail: "not found"}
	}
	return CheckResult{Name: name, OK: true, Detail: path}
}

func isDebian() bool {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return false
	}
	s := strings.ToLower(string(data))
	return strings.Contains(s, "debian") || strings.Contains(s, "ubuntu") || strings.Contains(s, "raspbian")
}
