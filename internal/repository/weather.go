package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
)

// RainLookahead は降雨リスクを判定する先読み時間です
const RainLookahead = 3 * time.Hour

// CurrentWeather は画面上部に表示する現在の天気です
type CurrentWeather struct {
	TemperatureC float64 `json:"temperature_c"`
	IsDay        bool    `json:"is_day"`
}

// WeatherRepository は物件周辺の天気を取得するインターフェースです
type WeatherRepository interface {
	Current(ctx context.Context) (CurrentWeather, error)
	RainRisk(ctx context.Context, now time.Time) (bool, error)
}

// WeatherConfig はOpen-Meteoへの問い合わせ条件です
type WeatherConfig struct {
	Endpoint  string
	Latitude  float64
	Longitude float64
	// RainThreshold は降水確率（%）のしきい値です
	RainThreshold int
	Timezone      string
	Timeout       time.Duration
}

// WeatherRepositoryImpl はOpen-Meteoの予報APIを使います
type WeatherRepositoryImpl struct {
	cfg    WeatherConfig
	client *http.Client
}

// NewWeatherRepository は新しいWeatherRepositoryImplを作成します
func NewWeatherRepository(cfg WeatherConfig) *WeatherRepositoryImpl {
	return &WeatherRepositoryImpl{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		IsDay       int     `json:"is_day"`
	} `json:"current"`
	Hourly struct {
		Time                     []int64 `json:"time"`
		PrecipitationProbability []*int  `json:"precipitation_probability"`
	} `json:"hourly"`
}

// Current は現在の気温と昼夜を取得します
func (w *WeatherRepositoryImpl) Current(ctx context.Context) (CurrentWeather, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "WeatherRepository.Current")

	q := w.baseQuery()
	q.Set("current", "temperature_2m,is_day")
	resp, err := w.fetch(ctx, q)
	utils.CloseSegment(seg, err)
	if err != nil {
		return CurrentWeather{}, err
	}
	return CurrentWeather{
		TemperatureC: resp.Current.Temperature,
		IsDay:        resp.Current.IsDay == 1,
	}, nil
}

// RainRisk は now から RainLookahead 以内に降水確率がしきい値以上の時間帯があるかを返します
func (w *WeatherRepositoryImpl) RainRisk(ctx context.Context, now time.Time) (bool, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "WeatherRepository.RainRisk")

	q := w.baseQuery()
	q.Set("hourly", "precipitation_probability")
	q.Set("forecast_days", "2")
	q.Set("timeformat", "unixtime")
	resp, err := w.fetch(ctx, q)
	utils.CloseSegment(seg, err)
	if err != nil {
		return false, err
	}

	// 現在時刻を含む1時間枠から先読みの終わりまでを対象にします
	from := now.Truncate(time.Hour).Unix()
	until := now.Add(RainLookahead).Unix()
	for i, ts := range resp.Hourly.Time {
		if ts < from || ts > until || i >= len(resp.Hourly.PrecipitationProbability) {
			continue
		}
		if p := resp.Hourly.PrecipitationProbability[i]; p != nil && *p >= w.cfg.RainThreshold {
			return true, nil
		}
	}
	return false, nil
}

func (w *WeatherRepositoryImpl) baseQuery() url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(w.cfg.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(w.cfg.Longitude, 'f', -1, 64))
	if w.cfg.Timezone != "" {
		q.Set("timezone", w.cfg.Timezone)
	}
	return q
}

func (w *WeatherRepositoryImpl) fetch(ctx context.Context, q url.Values) (*forecastResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	var out forecastResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	return &out, nil
}
